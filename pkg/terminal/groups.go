package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	runCmds
	inputCmds
	dataCmds
	pluginCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Running the game", runCmds},
	{"Controller input", inputCmds},
	{"Viewing and changing game memory", dataCmds},
	{"Plugins and the overlay", pluginCmds},
	{"Other commands", otherCmds},
}
