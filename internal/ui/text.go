package ui

import (
	"fmt"
	"io"
	"strings"
)

// TextRenderer draws a View for a terminal.
type TextRenderer struct {
	Out io.Writer
	// Width of the separator lines; 60 when zero.
	Width int
}

func (r TextRenderer) rule(ch string) string {
	w := r.Width
	if w <= 0 {
		w = 60
	}
	return strings.Repeat(ch, w)
}

// Render writes the whole conversation.
func (r TextRenderer) Render(v View) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s\n", v.Title, v.Subtitle)
	fmt.Fprintf(&b, "สถานะ: %s\n", v.Status)
	b.WriteString(r.rule("=") + "\n")
	if v.Empty {
		fmt.Fprintf(&b, "%s\n%s\n\n", v.Greeting, v.Intro)
		for i, s := range v.Samples {
			fmt.Fprintf(&b, "  [%d] %s\n", i+1, s)
		}
	}
	for _, m := range v.Messages {
		r.writeMessage(&b, m)
	}
	if v.Loading {
		fmt.Fprintf(&b, "... %s\n", v.LoadingText)
	}
	_, err := io.WriteString(r.Out, b.String())
	return err
}

// RenderMessage writes a single message, for incremental output.
func (r TextRenderer) RenderMessage(m MessageView) error {
	var b strings.Builder
	r.writeMessage(&b, m)
	_, err := io.WriteString(r.Out, b.String())
	return err
}

func (r TextRenderer) writeMessage(b *strings.Builder, m MessageView) {
	who := "PEA"
	if m.IsUser {
		who = "คุณ"
	}
	fmt.Fprintf(b, "\n[%s] %s\n%s\n", m.Time, who, m.Text)
	if m.Card != nil {
		r.writeCard(b, m.Card)
		return
	}
	writeLinks(b, m.Links)
}

func (r TextRenderer) writeCard(b *strings.Builder, c *CardView) {
	b.WriteString(r.rule("-") + "\n")
	fmt.Fprintf(b, "%s  ความแม่นยำ: %s\n", c.Heading, c.Confidence)
	fmt.Fprintf(b, "สังกัดการไฟฟ้า: %s\n", c.OfficeName)
	fmt.Fprintf(b, "จังหวัด: %s\n", c.Province)
	if c.District != "" {
		fmt.Fprintf(b, "อำเภอ: %s\n", c.District)
	}
	if c.Coordinates != "" {
		fmt.Fprintf(b, "พิกัด: %s\n", c.Coordinates)
	}
	fmt.Fprintf(b, "เหตุผล: %s\n", c.Reasoning)
	fmt.Fprintf(b, "คำแนะนำ: %s\n", c.SuggestedAction)
	writeLinks(b, c.Links)
	b.WriteString(r.rule("-") + "\n")
}

func writeLinks(b *strings.Builder, links []LinkView) {
	for _, l := range links {
		fmt.Fprintf(b, "  %s: %s\n", l.Label, l.URL)
	}
}

// RenderConfigError writes the notice shown when the service cannot start.
func RenderConfigError(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", ConfigErrorTitle, ConfigErrorDetail, ConfigErrorHint)
	return err
}
