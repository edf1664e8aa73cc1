package main

import "fmt"

const version = "1.0.0"

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("refsync version %s\n", version)
	fmt.Println("Reference Data Synchronization Engine")
	fmt.Println("https://github.com/ruslano69/refsync")
}

// PrintHelp prints comprehensive help information
func PrintHelp() {
	fmt.Println("refsync - Cross-environment reference data migration")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Println("USAGE:")
	fmt.Println("  refsync [command] [options]")
	fmt.Println()

	fmt.Println("COMMANDS:")
	fmt.Println("    --run <plan.yaml>          Execute migration plan")
	fmt.Println("    --preview <plan.yaml>      Execute plan in dry-run mode (no writes)")
	fmt.Println("    --validate <plan.yaml>     Validate plan without executing")
	fmt.Println("    --create-plan              Create a sample plan.yaml")
	fmt.Println()

	fmt.Println("OPTIONS:")
	fmt.Println("    --dry-run                  Force dry-run regardless of plan setting")
	fmt.Println("    --clean                    Force target cleaning before migration")
	fmt.Println("    --report <file.xlsx>       Write XLSX report (overrides plan setting)")
	fmt.Println("    --snapshot <dest>          Write snapshot dump to file or s3:// (overrides plan setting)")
	fmt.Println("    --parallel <n>             Max concurrent batch calls (overrides plan setting)")
	fmt.Println("    --batch <n>                Batch size for target writes (overrides plan setting)")
	fmt.Println("    --verify-checksum          Force checksum verification of natural key sets")
	fmt.Println("    --verbose                  Print per-phase progress for every entity")
	fmt.Println()

	fmt.Println("EXAMPLES:")
	fmt.Println("  # Migrate reference data between environments")
	fmt.Println("  refsync --run prod-to-stage.yaml")
	fmt.Println()
	fmt.Println("  # Preview volumes and reference translation coverage")
	fmt.Println("  refsync --preview prod-to-stage.yaml")
	fmt.Println()
	fmt.Println("  # Full refresh with operator report")
	fmt.Println("  refsync --run prod-to-stage.yaml --clean --report result.xlsx")
	fmt.Println()

	fmt.Println("STORES:")
	fmt.Println("  sqlite, postgres, mysql, mssql, memory")
}
