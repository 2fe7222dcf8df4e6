package version

// values are set at build time via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	BuiltBy   = "devbuild"
	BuildTags = ""
)

var FullVersion = composeVersion()

func composeVersion() string {
	ret := Version
	if BuildTags != "" {
		ret += "+" + BuildTags
	}
	return ret
}
