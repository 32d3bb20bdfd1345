package cli

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"

	"assembly-polisher/internal/config"
	"assembly-polisher/internal/domain"
)

func parse(t *testing.T, args ...string) (domain.RunConfig, string, error) {
	t.Helper()
	var buf bytes.Buffer
	cfg, err := Parse(args, config.DefaultSettings(), &buf)
	return cfg, buf.String(), err
}

// TestParseMinimalValidArguments checks -i/-d with defaults applied.
func TestParseMinimalValidArguments(t *testing.T) {
	cfg, out, err := parse(t, "-i", "reads.fastq", "-d", "draft.fasta")
	if err != nil {
		t.Fatalf("Parse() error = %v, output:\n%s", err, out)
	}

	if cfg.BasecallsPath != "reads.fastq" || cfg.DraftPath != "draft.fasta" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.OutputDir != config.DefaultOutputDir {
		t.Fatalf("output dir = %q, want default", cfg.OutputDir)
	}
	if cfg.Model != config.DefaultModel {
		t.Fatalf("model = %q, want default", cfg.Model)
	}
	if cfg.Threads != 1 || cfg.BatchSize != 100 {
		t.Fatalf("threads/batch = %d/%d", cfg.Threads, cfg.BatchSize)
	}
	if cfg.GapFill != domain.GapFillDraft || cfg.Force || cfg.ForceIndex {
		t.Fatalf("config = %+v", cfg)
	}
}

// TestParseMissingRequiredFlagPrintsUsage checks the required-flag contract.
func TestParseMissingRequiredFlagPrintsUsage(t *testing.T) {
	cases := [][]string{
		{"-d", "draft.fasta"},
		{"-i", "reads.fastq"},
		{},
	}

	for _, args := range cases {
		_, out, err := parse(t, args...)
		if err == nil {
			t.Fatalf("Parse(%v) expected error", args)
		}
		if !strings.Contains(out, "Usage:") {
			t.Fatalf("Parse(%v) output missing usage text:\n%s", args, out)
		}
	}
}

// TestParseUnknownFlagFails checks invalid-flag handling.
func TestParseUnknownFlagFails(t *testing.T) {
	_, out, err := parse(t, "-i", "r", "-d", "a", "-z")
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("output missing usage text:\n%s", out)
	}
}

// TestParseAllFlags checks every option is wired through.
func TestParseAllFlags(t *testing.T) {
	cfg, _, err := parse(t,
		"-i", "reads.fastq",
		"-d", "draft.fasta",
		"-o", "out",
		"-m", "r103_prom_high_g360",
		"-f",
		"-x",
		"-t", "8",
		"-b", "200",
	)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := domain.RunConfig{
		BasecallsPath: "reads.fastq",
		DraftPath:     "draft.fasta",
		OutputDir:     "out",
		Model:         "r103_prom_high_g360",
		Threads:       8,
		BatchSize:     200,
		Force:         true,
		ForceIndex:    true,
		GapFill:       domain.GapFillDraft,
	}
	if cfg != want {
		t.Fatalf("config = %+v, want %+v", cfg, want)
	}
}

// TestParseGapFillExclusivity checks -g / -r derivation and precedence.
func TestParseGapFillExclusivity(t *testing.T) {
	cfg, _, err := parse(t, "-i", "r", "-d", "a", "-r", "N")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.GapFill != domain.GapFillChar || cfg.FillChar != "N" {
		t.Fatalf("config = %+v, want literal fill char N", cfg)
	}

	cfg, _, err = parse(t, "-i", "r", "-d", "a", "-g")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.GapFill != domain.GapFillNone || cfg.FillChar != "" {
		t.Fatalf("config = %+v, want gap fill disabled", cfg)
	}

	cfg, _, err = parse(t, "-i", "r", "-d", "a", "-g", "-r", "N")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.GapFill != domain.GapFillChar {
		t.Fatalf("config = %+v, want -r to win over -g", cfg)
	}
}

// TestParseRejectsMultiCharFill checks -r validation.
func TestParseRejectsMultiCharFill(t *testing.T) {
	if _, _, err := parse(t, "-i", "r", "-d", "a", "-r", "NN"); err == nil {
		t.Fatal("expected error for multi-character fill")
	}
}

// TestParseRejectsBadNumbers checks -t / -b validation.
func TestParseRejectsBadNumbers(t *testing.T) {
	if _, _, err := parse(t, "-i", "r", "-d", "a", "-t", "0"); err == nil {
		t.Fatal("expected error for -t 0")
	}
	if _, _, err := parse(t, "-i", "r", "-d", "a", "-b", "0"); err == nil {
		t.Fatal("expected error for -b 0")
	}
	if _, _, err := parse(t, "-i", "r", "-d", "a", "-t", "many"); err == nil {
		t.Fatal("expected error for non-numeric -t")
	}
}

// TestParseHelpReturnsErrHelp checks -h semantics.
func TestParseHelpReturnsErrHelp(t *testing.T) {
	_, out, err := parse(t, "-h")
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("help output missing usage text:\n%s", out)
	}
}

// TestParseRejectsPositionalArguments checks strict flag-only argv.
func TestParseRejectsPositionalArguments(t *testing.T) {
	if _, _, err := parse(t, "-i", "r", "-d", "a", "stray"); err == nil {
		t.Fatal("expected error for positional argument")
	}
}
