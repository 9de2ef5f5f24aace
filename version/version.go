package version

var (
	// Set through -ldflags "-X github.com/AvaProtocol/aa-bridge/version.semver=..." when a release is tagged
	semver   = "0.1.0"
	revision = "unknown"
)

// Get return the version of the binary
func Get() string {
	return semver
}

func Commit() string {
	return revision
}
