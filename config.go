package backup

import "github.com/cyrusbackup/backup/userpath"

// Config is the explicit configuration object backup sessions are built
// from.
type Config struct {
	// RootDir is the directory new per-user data files are created under.
	// Required.
	RootDir string
	// MappingPath is the path to the user→path mapping database. If
	// empty, defaults to "<RootDir>/backups.db".
	MappingPath string
}

func (c Config) resolverConfig() userpath.Config {
	return userpath.Config{RootDir: c.RootDir, MappingPath: c.MappingPath}
}

func (c Config) validate() error {
	if c.RootDir == "" {
		return newErr(KindConfig, "config", errNoRootDir)
	}
	return nil
}

var errNoRootDir = errString("no root directory configured")

type errString string

func (e errString) Error() string { return string(e) }
