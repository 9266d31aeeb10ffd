package ui

import (
	"fmt"
	"strings"
	"time"

	"peasurvey/internal/models"
)

const (
	Title         = "ระบบสำรวจพื้นที่ PEA"
	Subtitle      = "PEA Area Surveyor Intelligence"
	StatusLocated = "ระบุพิกัดแล้ว"
	StatusUnknown = "ไม่ทราบพิกัดผู้ใช้"
	LoadingText   = "กำลังวิเคราะห์พิกัดและค้นหาข้อมูล..."
	Greeting      = "สวัสดีครับเจ้าหน้าที่สำรวจ"
	Intro         = "พิมพ์รายละเอียดสถานที่, จุดสังเกต, หรือตำบล/อำเภอ ที่ท่านต้องการตรวจสอบ ระบบจะช่วยวิเคราะห์สังกัดการไฟฟ้าและพื้นที่รับผิดชอบให้ทันที"
	Placeholder   = "พิมพ์คำถามเกี่ยวกับพื้นที่ หรือสถานที่..."
	Footer        = "ระบบใช้ Gemini 2.5 Flash และ Google Maps Grounding เพื่อความแม่นยำสูงสุด"
	CardHeading   = "ผลการวิเคราะห์พื้นที่ (PEA Analysis)"

	ConfigErrorTitle  = "Configuration Error"
	ConfigErrorDetail = "ไม่พบ API Key ในระบบ"
	ConfigErrorHint   = "กรุณาตั้งค่า API_KEY ใน Environment Variable"
)

// SamplePrompts fill the input when the conversation is still empty.
var SamplePrompts = []string{
	"หม้อแปลงระเบิดหน้าตลาดน้ำอัมพวา",
	"ขอขยายเขตไฟฟ้าแถว ไร่สุวรรณ ปากช่อง",
}

var displayZone = loadZone("Asia/Bangkok", 7*60*60)

func loadZone(name string, offset int) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone(name, offset)
}

// View is everything a renderer needs for one frame of the conversation.
type View struct {
	Title       string
	Subtitle    string
	Status      string
	Located     bool
	Loading     bool
	LoadingText string
	Empty       bool
	Greeting    string
	Intro       string
	Samples     []string
	Placeholder string
	Footer      string
	Messages    []MessageView
}

type MessageView struct {
	ID     string
	IsUser bool
	Text   string
	Time   string
	Card   *CardView
	// Links holds map references of an assistant reply that has no card.
	Links []LinkView
}

type CardView struct {
	Heading         string
	Confidence      string
	ConfidenceLevel string
	OfficeName      string
	Province        string
	District        string
	Reasoning       string
	SuggestedAction string
	Coordinates     string
	Links           []LinkView
}

type LinkView struct {
	URL   string
	Label string
}

// BuildView lays out messages in order. A card is attached only to assistant
// messages that carry a result.
func BuildView(messages []models.Message, loading, located bool) View {
	v := View{
		Title:       Title,
		Subtitle:    Subtitle,
		Status:      StatusUnknown,
		Located:     located,
		Loading:     loading,
		LoadingText: LoadingText,
		Empty:       len(messages) == 0,
		Greeting:    Greeting,
		Intro:       Intro,
		Samples:     SamplePrompts,
		Placeholder: Placeholder,
		Footer:      Footer,
		Messages:    make([]MessageView, 0, len(messages)),
	}
	if located {
		v.Status = StatusLocated
	}
	for _, m := range messages {
		v.Messages = append(v.Messages, BuildMessage(m))
	}
	return v
}

// BuildMessage lays out a single message.
func BuildMessage(m models.Message) MessageView {
	mv := MessageView{
		ID:     m.ID,
		IsUser: m.Role == models.RoleUser,
		Text:   m.Text,
		Time:   FormatTime(m.CreatedAt),
	}
	if mv.IsUser {
		return mv
	}
	links := linkViews(m.MapLinks)
	if m.Result == nil {
		mv.Links = links
		return mv
	}
	r := m.Result
	card := &CardView{
		Heading:         CardHeading,
		Confidence:      ConfidenceLabel(r.Confidence),
		ConfidenceLevel: strings.ToLower(string(r.Confidence)),
		OfficeName:      r.OfficeName,
		Province:        r.Province,
		District:        r.District,
		Reasoning:       r.Reasoning,
		SuggestedAction: r.SuggestedAction,
		Links:           links,
	}
	if r.Coordinates != nil {
		card.Coordinates = fmt.Sprintf("%.5f, %.5f", r.Coordinates.Lat, r.Coordinates.Lng)
	}
	mv.Card = card
	return mv
}

func linkViews(urls []string) []LinkView {
	if len(urls) == 0 {
		return nil
	}
	out := make([]LinkView, len(urls))
	for i, u := range urls {
		out[i] = LinkView{URL: u, Label: fmt.Sprintf("เปิดแผนที่ #%d", i+1)}
	}
	return out
}

// ConfidenceLabel renders the confidence level in Thai.
func ConfidenceLabel(c models.Confidence) string {
	switch c {
	case models.ConfidenceHigh:
		return "สูง"
	case models.ConfidenceMedium:
		return "ปานกลาง"
	default:
		return "ต่ำ"
	}
}

// FormatTime renders t as HH:MM in Thai local time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(displayZone).Format("15:04")
}

// CanSubmit reports whether input may be sent now.
func CanSubmit(input string, loading bool) bool {
	return !loading && strings.TrimSpace(input) != ""
}
