package cli

import "github.com/runnerr0/tabtime/internal/storage"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand shows storage and daemon health.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// TodayCommand prints one day's tabs and visits.
type TodayCommand struct {
	Date string `long:"date" description:"Day to show (YYYY-MM-DD); defaults to today"`

	globals *GlobalFlags
	version string
}

// TimelineCommand prints recent tab sessions across days.
type TimelineCommand struct {
	Since string `long:"since" description:"How far back to look (e.g., 6h, 2d)" default:"24h"`

	globals *GlobalFlags
	version string
}

// SearchCommand finds visits by keyword.
type SearchCommand struct {
	Since    string   `long:"since" description:"Only visits newer than duration (e.g., 7d, 24h, 2w)" default:"7d"`
	Domain   []string `long:"domain" description:"Filter by domain, subdomains included (repeatable)"`
	Category string   `long:"category" description:"Filter by category: work | social | other"`
	Limit    int      `long:"limit" description:"Maximum results" default:"10"`

	globals *GlobalFlags
	version string
}

// OpenCommand prints one visit and the navigation chain that led to it.
type OpenCommand struct {
	ID     string `long:"id" description:"Visit ID (required)"`
	Date   string `long:"date" description:"Day to look in (YYYY-MM-DD); defaults to all days"`
	Format string `long:"format" description:"Output format: md | url | json" default:"md"`

	globals *GlobalFlags
	version string
}

// AddCommand manually records a visit, e.g. time spent on another device.
type AddCommand struct {
	URL      string `long:"url" description:"URL to record (required)"`
	Title    string `long:"title" description:"Page title"`
	Duration string `long:"duration" description:"Focused time spent, ending now (e.g., 25m, 1h30m)"`
	Tab      int    `long:"tab" description:"Tab to file the visit under" default:"0"`
	Window   int    `long:"window" description:"Window the tab belongs to" default:"0"`

	globals *GlobalFlags
	version string
}

// IngestCommand starts the tabtime daemon (local HTTP service).
type IngestCommand struct {
	Host     string `long:"host" description:"Override daemon host"`
	Port     int    `long:"port" description:"Override daemon port"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}

// ReplayCommand feeds a recorded JSONL event log through the tracker.
type ReplayCommand struct {
	File string `long:"file" description:"JSONL file of timestamped host events (- for stdin)" default:"-"`

	globals *GlobalFlags
	version string
	kv      storage.KV // injectable for testing; nil means open configured store
}

// PruneCommand deletes day records older than a given age.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Delete days older than this (e.g., 30d, 2w); required"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
	version string
}

// PurgeCommand deletes ALL tabtime data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	kv      storage.KV // injectable for testing; nil means open configured store
}
