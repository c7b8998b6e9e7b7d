package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status   *StatusCommand
	Today    *TodayCommand
	Timeline *TimelineCommand
	Search   *SearchCommand
	Open     *OpenCommand
	Add      *AddCommand
	Ingest   *IngestCommand
	Replay   *ReplayCommand
	Prune    *PruneCommand
	Purge    *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tabtime"
	parser.LongDescription = "Local tab activity tracker: visits, navigation chains and focused time per day."

	cmds := &commands{
		Status:   &StatusCommand{globals: &globals, version: version},
		Today:    &TodayCommand{globals: &globals, version: version},
		Timeline: &TimelineCommand{globals: &globals, version: version},
		Search:   &SearchCommand{globals: &globals, version: version},
		Open:     &OpenCommand{globals: &globals, version: version},
		Add:      &AddCommand{globals: &globals, version: version},
		Ingest:   &IngestCommand{globals: &globals, version: version},
		Replay:   &ReplayCommand{globals: &globals, version: version},
		Prune:    &PruneCommand{globals: &globals, version: version},
		Purge:    &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("status", "Show storage and daemon health", "Show storage location, stored days, today's totals and whether the daemon is running.", cmds.Status)
	parser.AddCommand("today", "Show a day's browsing session", "Show tabs, visits, navigation sources and active time for today or --date.", cmds.Today)
	parser.AddCommand("timeline", "Show recent tab sessions", "Show tab sessions with visits that started within --since, across day boundaries.", cmds.Timeline)
	parser.AddCommand("search", "Search visits", "Search visits by keyword in URL, title or domain, with --domain and --category filters.", cmds.Search)
	parser.AddCommand("open", "Show a visit and its navigation chain", "Show one visit by --id and walk back through the visits it was opened from.", cmds.Open)
	parser.AddCommand("add", "Manually record a visit", "Record a closed visit for --url with optional --duration of focused time ending now.", cmds.Add)
	parser.AddCommand("ingest", "Start the tabtime daemon", "Start the tabtime daemon (local HTTP service receiving browser host events).", cmds.Ingest)
	parser.AddCommand("replay", "Replay a recorded event log", "Feed a JSONL log of timestamped host events through the tracker into the configured store.", cmds.Replay)
	parser.AddCommand("prune", "Delete old days", "Delete day records older than --older-than. Today is always kept. Use --dry-run to preview.", cmds.Prune)
	parser.AddCommand("purge", "Delete ALL tabtime data", "Delete ALL tabtime data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the tabtime CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tabtime %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
