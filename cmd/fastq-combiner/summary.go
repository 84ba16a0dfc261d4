package main

import (
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	"github.com/asomohammed/Fastq-combiner/orchestrate"
)

type summaryRow struct {
	Target     string `csv:"target"`
	Status     string `csv:"status"`
	R1Records  int64  `csv:"r1_records"`
	R2Records  int64  `csv:"r2_records"`
	Duplicates int64  `csv:"duplicates_removed"`
	R1Checksum string `csv:"r1_checksum"`
	R2Checksum string `csv:"r2_checksum"`
	R1Output   string `csv:"r1_output"`
	R2Output   string `csv:"r2_output"`
	Seconds    float64 `csv:"seconds"`
	Error      string `csv:"error"`
	Warnings   string `csv:"warnings"`
}

func writeSummary(path string, run orchestrate.RunResult) error {
	rows := make([]summaryRow, 0, len(run.Results))
	for _, r := range run.Results {
		row := summaryRow{
			Target:     r.Target,
			Status:     "combined",
			R1Records:  r.R1Records,
			R2Records:  r.R2Records,
			Duplicates: r.Duplicates,
			R1Checksum: r.R1Checksum,
			R2Checksum: r.R2Checksum,
			R1Output:   r.R1Output,
			R2Output:   r.R2Output,
			Seconds:    r.Elapsed.Seconds(),
			Warnings:   strings.Join(r.Warnings, "; "),
		}
		switch {
		case r.Err != nil:
			row.Status = "failed"
			row.Error = r.Err.Error()
		case r.Resumed:
			row.Status = "skipped"
		}
		rows = append(rows, row)
	}

	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	return pfx.Err(gocsv.MarshalFile(&rows, f))
}
