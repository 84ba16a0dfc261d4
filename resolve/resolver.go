// Package resolve matches CSV-declared source tokens to classified files,
// exact tiers first, then scored fuzzy matching.
package resolve

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/asomohammed/Fastq-combiner/discover"
	"github.com/asomohammed/Fastq-combiner/fastq"
	"github.com/asomohammed/Fastq-combiner/mapping"
)

// Fuzzy acceptance bounds: the best candidate must score above Threshold and
// beat the runner-up by at least TieMargin, or the token stays unresolved.
const (
	DefaultThreshold = 0.6
	DefaultTieMargin = 0.05
)

// ConflictPolicy decides which token keeps a physical file claimed by two
// different declarations.
type ConflictPolicy int

const (
	FirstDeclaredWins ConflictPolicy = iota
	LastDeclaredWins
)

// Tier records how a token was matched, for reporting.
type Tier int

const (
	TierExactPrefix Tier = iota
	TierCaseInsensitive
	TierNormalized
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExactPrefix:
		return "exact"
	case TierCaseInsensitive:
		return "case-insensitive"
	case TierNormalized:
		return "normalized"
	case TierFuzzy:
		return "fuzzy"
	}
	return "unknown"
}

// Match is one (token, file) assignment.
type Match struct {
	Token string
	File  discover.SourceFile
	Tier  Tier
	Score float64 // populated for TierFuzzy only
}

// ResolvedPair is the per-target combine input: ordered R1 and R2 source
// lists with pairwise-corresponding sample/lane identity. Unbalanced pairs
// are flagged, never silently completed.
type ResolvedPair struct {
	Target     string
	R1         []discover.SourceFile
	R2         []discover.SourceFile
	Fuzzy      []Match
	Unbalanced bool
	Warnings   []string
}

// UnmatchedTokenError fails a target whose declared token resolves to no file.
type UnmatchedTokenError struct {
	Target string
	Token  string
}

func (e *UnmatchedTokenError) Error() string {
	return fmt.Sprintf("target %q: no file matches source token %q", e.Target, e.Token)
}

// AmbiguousTokenError fails a target whose best fuzzy candidates are tied.
type AmbiguousTokenError struct {
	Target     string
	Token      string
	Candidates []string
	Score      float64
}

func (e *AmbiguousTokenError) Error() string {
	return fmt.Sprintf("target %q: token %q has tied fuzzy candidates %v (score %.3f)",
		e.Target, e.Token, e.Candidates, e.Score)
}

// Config tunes the resolver. Zero value gets the defaults.
type Config struct {
	Similarity Similarity
	Threshold  float64
	TieMargin  float64
	Policy     ConflictPolicy
}

// Resolver assigns classified files to declared tokens. Each physical file is
// consumed by at most one (target, direction) slot.
type Resolver struct {
	cfg     Config
	files   map[string][]discover.SourceFile // by direction
	claimed map[string]claim                 // by path
}

type claim struct {
	target string
	token  string
	pair   *ResolvedPair // for LastDeclaredWins steals
}

// New builds a resolver over the classified files.
func New(cfg Config, files []discover.SourceFile) *Resolver {
	if cfg.Similarity == nil {
		cfg.Similarity = NewLevenshteinSimilarity()
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.TieMargin == 0 {
		cfg.TieMargin = DefaultTieMargin
	}

	r := &Resolver{
		cfg:     cfg,
		files:   make(map[string][]discover.SourceFile),
		claimed: make(map[string]claim),
	}
	for _, f := range files {
		r.files[f.Direction] = append(r.files[f.Direction], f)
	}

	return r
}

// CanResolve reports whether a token would match any candidate at the exact
// tiers. Used for mapping-file header auto-detection.
func (r *Resolver) CanResolve(token string) bool {
	for _, direction := range []string{fastq.Read1, fastq.Read2} {
		for _, f := range r.files[direction] {
			if _, ok := matchTier(token, f); ok {
				return true
			}
		}
	}
	return false
}

// ResolveAll resolves every mapping in declaration order. A target that fails
// resolution gets a nil pair and its error in errs; other targets proceed.
// Balance is checked only after every claim has settled, since a
// LastDeclaredWins steal can unbalance an earlier pair.
func (r *Resolver) ResolveAll(ms []mapping.SampleMapping) (pairs []*ResolvedPair, errs map[string]error) {
	errs = make(map[string]error)

	for _, m := range ms {
		pair, err := r.resolveOne(m)
		if err != nil {
			errs[m.Target] = err
			pairs = append(pairs, nil)
			continue
		}
		pairs = append(pairs, pair)
	}

	for _, pair := range pairs {
		if pair != nil {
			checkBalance(pair)
		}
	}

	return pairs, errs
}

func (r *Resolver) resolveOne(m mapping.SampleMapping) (*ResolvedPair, error) {
	pair := &ResolvedPair{Target: m.Target}

	for _, token := range m.Sources {
		r1Matches, err := r.matchToken(pair, token, fastq.Read1)
		if err != nil {
			return nil, err
		}
		r2Matches, err := r.matchToken(pair, token, fastq.Read2)
		if err != nil {
			return nil, err
		}

		for _, match := range r1Matches {
			if match.Tier == TierFuzzy {
				pair.Fuzzy = append(pair.Fuzzy, match)
			}
			pair.R1 = append(pair.R1, match.File)
		}
		for _, match := range r2Matches {
			if match.Tier == TierFuzzy {
				pair.Fuzzy = append(pair.Fuzzy, match)
			}
			pair.R2 = append(pair.R2, match.File)
		}
	}

	return pair, nil
}

// matchToken finds the files representing token in one direction, walking the
// tiers in strict priority order.
func (r *Resolver) matchToken(pair *ResolvedPair, token, direction string) ([]Match, error) {
	target := pair.Target
	candidates := r.files[direction]

	// Tiers 1-3: collect every file matching at the best tier reached.
	for tier := TierExactPrefix; tier <= TierNormalized; tier++ {
		var hits []discover.SourceFile
		for _, f := range candidates {
			if t, ok := matchTier(token, f); ok && t == tier {
				hits = append(hits, f)
			}
		}
		if len(hits) > 0 {
			return r.claimAll(pair, token, tier, 0, hits)
		}
	}

	// Tier 4: scored similarity against candidate tokens.
	best, runnerUp := -1.0, -1.0
	var bestToken string
	scores := make(map[string]float64)
	for _, f := range candidates {
		if _, done := scores[f.Token]; done {
			continue
		}
		s := r.cfg.Similarity.Score(normalize(token), normalize(f.Token))
		scores[f.Token] = s
		switch {
		case s > best:
			best, runnerUp = s, best
			bestToken = f.Token
		case s > runnerUp:
			runnerUp = s
		}
	}

	if best < r.cfg.Threshold {
		return nil, &UnmatchedTokenError{Target: target, Token: token}
	}
	if runnerUp >= 0 && best-runnerUp < r.cfg.TieMargin {
		tied := []string{bestToken}
		for t, s := range scores {
			if t != bestToken && best-s < r.cfg.TieMargin {
				tied = append(tied, t)
			}
		}
		sort.Strings(tied)
		return nil, &AmbiguousTokenError{Target: target, Token: token, Candidates: tied, Score: best}
	}

	var hits []discover.SourceFile
	for _, f := range candidates {
		if f.Token == bestToken {
			hits = append(hits, f)
		}
	}

	return r.claimAll(pair, token, TierFuzzy, best, hits)
}

// claimAll consumes files for a token, applying the conflict policy against
// prior claims. A token left with zero unclaimed files is unmatched.
func (r *Resolver) claimAll(pair *ResolvedPair, token string, tier Tier, score float64, hits []discover.SourceFile) ([]Match, error) {
	target := pair.Target
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Lane != hits[j].Lane {
			return hits[i].Lane < hits[j].Lane
		}
		return hits[i].Path < hits[j].Path
	})

	var matches []Match
	for _, f := range hits {
		if prior, taken := r.claimed[f.Path]; taken {
			log.Printf("resolve: %s already claimed by target %q token %q; also wanted by target %q token %q",
				f.Path, prior.target, prior.token, target, token)
			if r.cfg.Policy == FirstDeclaredWins {
				continue
			}
			// LastDeclaredWins: steal the file back from the earlier pair.
			if prior.pair != nil {
				prior.pair.R1 = dropPath(prior.pair.R1, f.Path)
				prior.pair.R2 = dropPath(prior.pair.R2, f.Path)
				prior.pair.Warnings = append(prior.pair.Warnings,
					fmt.Sprintf("%s reassigned to target %q token %q", f.Path, target, token))
			}
		}
		r.claimed[f.Path] = claim{target: target, token: token, pair: pair}
		matches = append(matches, Match{Token: token, File: f, Tier: tier, Score: score})
	}

	if len(matches) == 0 {
		return nil, &UnmatchedTokenError{Target: target, Token: token}
	}

	return matches, nil
}

func dropPath(files []discover.SourceFile, path string) []discover.SourceFile {
	out := files[:0]
	for _, f := range files {
		if f.Path != path {
			out = append(out, f)
		}
	}
	return out
}

// checkBalance verifies R1 and R2 lists pair up by sample token and lane.
func checkBalance(pair *ResolvedPair) {
	if len(pair.R1) != len(pair.R2) {
		pair.Unbalanced = true
		pair.Warnings = append(pair.Warnings,
			fmt.Sprintf("unbalanced source lists: %d R1 vs %d R2 files", len(pair.R1), len(pair.R2)))
		return
	}
	for i := range pair.R1 {
		if pair.R1[i].Token != pair.R2[i].Token || pair.R1[i].Lane != pair.R2[i].Lane {
			pair.Unbalanced = true
			pair.Warnings = append(pair.Warnings,
				fmt.Sprintf("source %d does not pair: %s vs %s", i, pair.R1[i].Path, pair.R2[i].Path))
		}
	}
}

// matchTier reports the best exact tier (1-3) at which token matches the
// file's stem, if any.
func matchTier(token string, f discover.SourceFile) (Tier, bool) {
	stem := f.Stem()
	switch {
	case strings.HasPrefix(stem, token):
		return TierExactPrefix, true
	case strings.HasPrefix(strings.ToLower(stem), strings.ToLower(token)):
		return TierCaseInsensitive, true
	case strings.HasPrefix(normalize(stem), normalize(token)):
		return TierNormalized, true
	}
	return 0, false
}

// normalize treats '-', '_' and space as equivalent separators and folds case.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
