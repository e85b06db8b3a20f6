package cmds

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pnp3ds/pnp/pkg/horizon"
)

// heldFlag is a comma separated list of controller states. Repeating the
// flag appends to the list.
type heldFlag []horizon.Buttons

var _ pflag.Value = (*heldFlag)(nil)

func (f *heldFlag) String() string {
	s := make([]string, len(*f))
	for i, b := range *f {
		if b == 0 {
			s[i] = "-"
		} else {
			s[i] = b.String()
		}
	}
	return strings.Join(s, ",")
}

func (f *heldFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "-" || s == "" {
			*f = append(*f, 0)
			continue
		}
		b, ok := horizon.ParseButtons(s)
		if !ok {
			return fmt.Errorf("unknown buttons %q", s)
		}
		*f = append(*f, b)
	}
	return nil
}

func (f *heldFlag) Type() string {
	return "buttons"
}
