package settings

const (
	CmdName = "lineprof"
	Version = "0.1.0"

	// Creator is the identity written in profile headers.
	Creator = CmdName + "/" + Version
)
