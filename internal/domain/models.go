package domain

import "encoding/json"

// =============================================================================
// Core Configuration
// =============================================================================

type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Console ConsoleConfig `json:"console" yaml:"console"`
	Infra   InfraConfig   `json:"infra" yaml:"infra"`
}

// ServerConfig controls where the web console listens.
type ServerConfig struct {
	Host            string `json:"host" yaml:"host"`                                       // "" listens on all interfaces
	Port            int    `json:"port" yaml:"port" jsonschema:"minimum=-1,maximum=65535"` // -1 picks a random port in 32768..65535, 0 lets the OS choose
	PatchStdStreams bool   `json:"patchStdStreams" yaml:"patchStdStreams"`                 // redirect process stdout/stderr to the console
	QRCode          bool   `json:"qrCode" yaml:"qrCode"`                                   // print the console URL as a QR code when the session starts
}

// ConsoleConfig holds the polling knobs of the debugger/console bridge.
type ConsoleConfig struct {
	PollIntervalMs  int  `json:"pollIntervalMs" yaml:"pollIntervalMs" jsonschema:"minimum=1"`   // ReadLine queue poll interval
	FlushRetries    int  `json:"flushRetries" yaml:"flushRetries" jsonschema:"minimum=0"`       // Flush gives up after this many checks
	FlushIntervalMs int  `json:"flushIntervalMs" yaml:"flushIntervalMs" jsonschema:"minimum=1"` // sleep between Flush checks
	GzipMinSize     int  `json:"gzipMinSize" yaml:"gzipMinSize" jsonschema:"minimum=0"`         // responses below this size are sent uncompressed
	WatchSource     bool `json:"watchSource" yaml:"watchSource"`                                // reload the listing when the file changes on disk
}

type InfraConfig struct {
	LogFormat string `json:"logFormat" yaml:"logFormat" jsonschema:"enum=text,enum=json"`                     // "json" | "text"
	LogLevel  string `json:"logLevel" yaml:"logLevel" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"` // "debug" | "info" | "warn" | "error"
	// HistoryDB is a libSQL URL ("file:webdbg.db", "libsql://...") where console
	// commands are recorded. Empty disables the history.
	HistoryDB string `json:"historyDB,omitempty" yaml:"historyDB,omitempty"`
}

// =============================================================================
// Frame Data Protocol
// =============================================================================

// NoData is shown in place of any value the debugger cannot currently provide.
const NoData = "No data available"

// FrameSnapshot is the state of the selected execution frame as served to the
// web client.
type FrameSnapshot struct {
	Dirname     string `json:"dirname"`
	Filename    string `json:"filename"`
	FileListing string `json:"file_listing"`
	CurrentLine int    `json:"current_line"`
	TotalLines  int    `json:"total_lines"`
	Breakpoints []int  `json:"breakpoints"`
	Globals     string `json:"globals"`
	Locals      string `json:"locals"`
}

// NoFrameSnapshot is reported when the interpreter holds no current frame or its
// source cannot be located.
func NoFrameSnapshot() FrameSnapshot {
	return FrameSnapshot{
		FileListing: NoData,
		CurrentLine: -1,
		Breakpoints: []int{},
		Globals:     NoData,
		Locals:      NoData,
	}
}

// IsSentinel reports whether s is the "no data" snapshot.
func (s FrameSnapshot) IsSentinel() bool {
	return s.CurrentLine == -1 && s.Filename == ""
}

// MarshalJSON keeps breakpoints an array (never null) on the wire.
func (s FrameSnapshot) MarshalJSON() ([]byte, error) {
	type frameSnapshot FrameSnapshot
	if s.Breakpoints == nil {
		s.Breakpoints = []int{}
	}
	return json.Marshal(frameSnapshot(s))
}

// Update is the combined payload of the poll endpoint.
type Update struct {
	Session   string        `json:"session"`
	History   string        `json:"history"`
	FrameData FrameSnapshot `json:"frame_data"`
}
