package main

import "strings"

// flagSlice collects a repeatable string flag.
type flagSlice []string

func (f *flagSlice) String() string {
	return strings.Join(*f, ",")
}

func (f *flagSlice) Set(value string) error {
	*f = append(*f, value)
	return nil
}
