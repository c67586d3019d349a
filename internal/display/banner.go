package display

import (
	"fmt"
	"io"

	"github.com/backmassage/neurobatch/internal/term"
)

const banner = `                            _           _       _
 _ __   ___ _   _ _ __ ___ | |__   __ _| |_ ___| |__
| '_ \ / _ \ | | | '__/ _ \| '_ \ / _` + "`" + ` | __/ __| '_ \
| | | |  __/ |_| | | | (_) | |_) | (_| | || (__| | | |
|_| |_|\___|\__,_|_|  \___/|_.__/ \__,_|\__\___|_| |_|`

// PrintBanner prints the ASCII art banner in the banner style.
func PrintBanner(w io.Writer) {
	fmt.Fprintln(w, term.BannerStyle.Render(banner))
}
