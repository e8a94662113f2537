package ui

import (
	tcell "github.com/gdamore/tcell/v2"

	"agentboard/internal/domain"
)

// Theme carries every color the canvas and panels draw with. Views receive
// it explicitly; there is no package-level default to mutate.
type Theme struct {
	Name string

	Background tcell.Color
	Grid       tcell.Color
	Text       tcell.Color
	Muted      tcell.Color

	BoxBorder  tcell.Color
	Selection  tcell.Color
	Connection tcell.Color
	RubberBand tcell.Color
	Handle     tcell.Color
	PinGlyph   tcell.Color

	PopupBackground tcell.Color
	PopupBorder     tcell.Color

	Good tcell.Color
	Bad  tcell.Color

	Agent map[domain.AgentType]tcell.Color
}

func DarkTheme() Theme {
	return Theme{
		Name:            "dark",
		Background:      tcell.NewHexColor(0x161620),
		Grid:            tcell.NewHexColor(0x2a2a38),
		Text:            tcell.NewHexColor(0xe8e8e8),
		Muted:           tcell.NewHexColor(0x8a8a9a),
		BoxBorder:       tcell.NewHexColor(0x9a9ab0),
		Selection:       tcell.NewHexColor(0xf5c542),
		Connection:      tcell.NewHexColor(0x7fa8d9),
		RubberBand:      tcell.NewHexColor(0xf5c542),
		Handle:          tcell.NewHexColor(0x58c9a9),
		PinGlyph:        tcell.NewHexColor(0xd96a6a),
		PopupBackground: tcell.NewHexColor(0x222230),
		PopupBorder:     tcell.NewHexColor(0x58c9a9),
		Good:            tcell.NewHexColor(0x58c97a),
		Bad:             tcell.NewHexColor(0xd95858),
		Agent: map[domain.AgentType]tcell.Color{
			domain.AgentTypeCoordinator: tcell.NewHexColor(0xb08ae0),
			domain.AgentTypeCoder:       tcell.NewHexColor(0x6aa8e8),
			domain.AgentTypeTester:      tcell.NewHexColor(0x6ad98a),
			domain.AgentTypeRunner:      tcell.NewHexColor(0xe8a85a),
		},
	}
}

func LightTheme() Theme {
	return Theme{
		Name:            "light",
		Background:      tcell.NewHexColor(0xfafaf5),
		Grid:            tcell.NewHexColor(0xe0e0d8),
		Text:            tcell.NewHexColor(0x202028),
		Muted:           tcell.NewHexColor(0x8a8a80),
		BoxBorder:       tcell.NewHexColor(0x50505a),
		Selection:       tcell.NewHexColor(0xb07800),
		Connection:      tcell.NewHexColor(0x3a6a9a),
		RubberBand:      tcell.NewHexColor(0xb07800),
		Handle:          tcell.NewHexColor(0x1a8a6a),
		PinGlyph:        tcell.NewHexColor(0xa83232),
		PopupBackground: tcell.NewHexColor(0xf0f0e8),
		PopupBorder:     tcell.NewHexColor(0x1a8a6a),
		Good:            tcell.NewHexColor(0x1a8a3a),
		Bad:             tcell.NewHexColor(0xb82a2a),
		Agent: map[domain.AgentType]tcell.Color{
			domain.AgentTypeCoordinator: tcell.NewHexColor(0x6a3aa8),
			domain.AgentTypeCoder:       tcell.NewHexColor(0x1f4e79),
			domain.AgentTypeTester:      tcell.NewHexColor(0x1e6e3a),
			domain.AgentTypeRunner:      tcell.NewHexColor(0x9a5a1f),
		},
	}
}

// ThemeByName resolves a config value. Unknown names fall back to dark.
func ThemeByName(name string) Theme {
	if name == "light" {
		return LightTheme()
	}
	return DarkTheme()
}

func (t Theme) agentColor(at domain.AgentType) tcell.Color {
	if c, ok := t.Agent[at]; ok {
		return c
	}
	return t.BoxBorder
}
