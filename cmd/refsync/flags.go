package main

import "flag"

// Flags holds all command-line flags
type Flags struct {
	// Commands
	Run      *string
	Validate *string
	Preview  *string

	// Overrides
	DryRun         *bool
	Clean          *bool
	Report         *string
	Snapshot       *string
	Parallel       *int
	Batch          *int
	VerifyChecksum *bool

	// Config Creation
	CreatePlan *bool

	// Misc
	Verbose *bool
	Version *bool
	Help    *bool
}

// ParseFlags defines and parses all command-line flags
func ParseFlags() *Flags {
	f := &Flags{}

	// Commands
	f.Run = flag.String("run", "", "Execute migration plan from YAML file (file path)")
	f.Validate = flag.String("validate", "", "Validate migration plan without executing (file path)")
	f.Preview = flag.String("preview", "", "Execute plan in dry-run mode regardless of plan settings (file path)")

	// Overrides
	f.DryRun = flag.Bool("dry-run", false, "Force dry-run mode (no writes to target)")
	f.Clean = flag.Bool("clean", false, "Force target cleaning before migration")
	f.Report = flag.String("report", "", "Write XLSX report to file (overrides plan setting)")
	f.Snapshot = flag.String("snapshot", "", "Write snapshot dump to file or s3://bucket/key (overrides plan setting)")
	f.Parallel = flag.Int("parallel", 0, "Max concurrent batch calls (overrides plan setting)")
	f.Batch = flag.Int("batch", 0, "Batch size for target writes (overrides plan setting)")
	f.VerifyChecksum = flag.Bool("verify-checksum", false, "Force checksum verification of natural key sets")

	// Config Creation
	f.CreatePlan = flag.Bool("create-plan", false, "Create a sample migration plan: plan.yaml")

	// Misc
	f.Verbose = flag.Bool("verbose", false, "Print per-phase progress for every entity")
	f.Version = flag.Bool("version", false, "Show version information")
	f.Help = flag.Bool("help", false, "Show detailed help")

	flag.Parse()
	return f
}

// commandWasSpecified checks if any command flag was provided
func commandWasSpecified(f *Flags) bool {
	return *f.Run != "" || *f.Validate != "" || *f.Preview != "" || *f.CreatePlan
}
