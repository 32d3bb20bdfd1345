package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"assembly-polisher/internal/domain"
)

// Parse builds a RunConfig from argv, applying persisted settings as
// flag defaults. Usage errors print the full usage text to w and return
// a non-nil error; -h returns flag.ErrHelp after printing usage.
func Parse(args []string, defaults domain.Settings, w io.Writer) (domain.RunConfig, error) {
	fs := flag.NewFlagSet("assembly-polisher", flag.ContinueOnError)
	fs.SetOutput(w)

	var (
		basecalls = fs.String("i", "", "basecalls to align against the draft")
		draft     = fs.String("d", "", "draft assembly to polish")
		outDir    = fs.String("o", defaults.OutputDir, "output directory")
		modelRef  = fs.String("m", defaults.Model, "model name or archive path")
		noFill    = fs.Bool("g", false, "disable gap filling from the draft")
		fillChar  = fs.String("r", "", "literal gap-fill character")
		force     = fs.Bool("f", false, "force rerun of all stages")
		forceIdx  = fs.Bool("x", false, "force alignment index recreation")
		threads   = fs.Int("t", defaults.Threads, "thread count")
		batchSize = fs.Int("b", defaults.BatchSize, "inference batch size")
	)

	fs.Usage = func() { printUsage(w, defaults) }

	if err := fs.Parse(args); err != nil {
		// flag already printed the message and usage.
		return domain.RunConfig{}, err
	}

	if fs.NArg() > 0 {
		return usageError(fs, "unexpected argument: %s", fs.Arg(0))
	}
	if strings.TrimSpace(*basecalls) == "" {
		return usageError(fs, "missing required flag -i")
	}
	if strings.TrimSpace(*draft) == "" {
		return usageError(fs, "missing required flag -d")
	}
	if *fillChar != "" && utf8.RuneCountInString(*fillChar) != 1 {
		return usageError(fs, "-r takes a single character, got %q", *fillChar)
	}
	if *threads < 1 {
		return usageError(fs, "-t must be at least 1, got %d", *threads)
	}
	if *batchSize < 1 {
		return usageError(fs, "-b must be at least 1, got %d", *batchSize)
	}

	// A literal fill character is the more specific request, so it wins
	// over -g when both are supplied.
	gapFill := domain.GapFillDraft
	switch {
	case *fillChar != "":
		gapFill = domain.GapFillChar
	case *noFill:
		gapFill = domain.GapFillNone
	}

	return domain.RunConfig{
		BasecallsPath: *basecalls,
		DraftPath:     *draft,
		OutputDir:     *outDir,
		Model:         *modelRef,
		Threads:       *threads,
		BatchSize:     *batchSize,
		Force:         *force,
		ForceIndex:    *forceIdx,
		GapFill:       gapFill,
		FillChar:      *fillChar,
	}, nil
}

func usageError(fs *flag.FlagSet, format string, args ...any) (domain.RunConfig, error) {
	err := fmt.Errorf(format, args...)
	fmt.Fprintln(fs.Output(), err)
	fs.Usage()
	return domain.RunConfig{}, err
}

func printUsage(w io.Writer, defaults domain.Settings) {
	fmt.Fprintln(w, "Usage: assembly-polisher -i <basecalls> -d <draft> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Polish a draft assembly using a neural consensus model.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Required:")
	fmt.Fprintln(w, "  -i file   basecalls (fasta/fastq) to align against the draft")
	fmt.Fprintln(w, "  -d file   draft assembly to polish")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintf(w, "  -o dir    output directory [%s]\n", defaults.OutputDir)
	fmt.Fprintf(w, "  -m model  model name or trained model archive path [%s]\n", defaults.Model)
	fmt.Fprintln(w, "  -g        disable gap filling from the draft sequence")
	fmt.Fprintln(w, "  -r char   fill gaps with a literal character instead of the draft")
	fmt.Fprintln(w, "  -f        force rerun of all stages, overwriting existing outputs")
	fmt.Fprintln(w, "  -x        force recreation of the alignment index")
	fmt.Fprintf(w, "  -t n      thread count for alignment, inference and stitching [%d]\n", defaults.Threads)
	fmt.Fprintf(w, "  -b n      inference batch size [%d]\n", defaults.BatchSize)
	fmt.Fprintln(w, "  -h        show this help")
}
