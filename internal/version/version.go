// Package version несёт информацию о сборке, заполняемую через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// BuildInfo — версия, коммит и дата сборки бинаря.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Get возвращает информацию о текущей сборке.
func Get() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, Date: date}
}

// GetVersion возвращает версию сборки для health-ответов.
func GetVersion() string { return version }

func (b BuildInfo) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}
