package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"peasurvey/internal/models"
)

func sampleConversation() []models.Message {
	at := time.Date(2025, 3, 1, 7, 5, 0, 0, time.UTC)
	return []models.Message{
		{ID: "1", Role: models.RoleUser, Text: "หม้อแปลงระเบิดหน้าตลาดน้ำอัมพวา", CreatedAt: at},
		{ID: "2", Role: models.RoleAssistant, Text: "พื้นที่นี้อยู่ในความรับผิดชอบของ กฟภ.อัมพวา", CreatedAt: at,
			Result: &models.LocationResult{
				OfficeName:      "กฟภ.อัมพวา",
				Province:        "สมุทรสงคราม",
				District:        "อัมพวา",
				Confidence:      models.ConfidenceMedium,
				Reasoning:       "ตลาดน้ำอัมพวาตั้งอยู่ในอำเภออัมพวา",
				SuggestedAction: "ติดต่อ 1129",
				Coordinates:     &models.Coordinates{Lat: 13.425, Lng: 99.955},
			},
			MapLinks: []string{"https://maps.google.com/?cid=1", "https://maps.google.com/?cid=2"},
		},
		{ID: "3", Role: models.RoleAssistant, Text: "ขออภัย", CreatedAt: at, MapLinks: []string{"https://maps.google.com/?cid=3"}},
	}
}

func TestBuildViewCardsAndLabels(t *testing.T) {
	v := BuildView(sampleConversation(), false, true)
	if v.Empty || v.Status != StatusLocated || len(v.Messages) != 3 {
		t.Fatalf("unexpected view header: %+v", v)
	}
	if v.Messages[0].Card != nil || !v.Messages[0].IsUser {
		t.Fatalf("user message must not carry a card")
	}
	card := v.Messages[1].Card
	if card == nil {
		t.Fatalf("expected card under assistant result")
	}
	if card.Confidence != "ปานกลาง" || card.ConfidenceLevel != "medium" {
		t.Fatalf("confidence mismatch: %q %q", card.Confidence, card.ConfidenceLevel)
	}
	if len(card.Links) != 2 || card.Links[1].Label != "เปิดแผนที่ #2" {
		t.Fatalf("link labels mismatch: %+v", card.Links)
	}
	if card.Coordinates != "13.42500, 99.95500" {
		t.Fatalf("coordinates mismatch: %q", card.Coordinates)
	}
	if v.Messages[1].Time != "14:05" {
		t.Fatalf("expected Bangkok time 14:05, got %q", v.Messages[1].Time)
	}
	if v.Messages[2].Card != nil || len(v.Messages[2].Links) != 1 {
		t.Fatalf("reply without result keeps links outside a card: %+v", v.Messages[2])
	}
}

func TestBuildViewEmptyAndStatus(t *testing.T) {
	v := BuildView(nil, true, false)
	if !v.Empty || len(v.Samples) != 2 || v.Status != StatusUnknown || !v.Loading {
		t.Fatalf("unexpected empty view: %+v", v)
	}
}

func TestConfidenceLabel(t *testing.T) {
	tests := map[models.Confidence]string{
		models.ConfidenceHigh:   "สูง",
		models.ConfidenceMedium: "ปานกลาง",
		models.ConfidenceLow:    "ต่ำ",
	}
	for in, want := range tests {
		if got := ConfidenceLabel(in); got != want {
			t.Fatalf("%s: want %s got %s", in, want, got)
		}
	}
}

func TestCanSubmit(t *testing.T) {
	tests := []struct {
		input   string
		loading bool
		want    bool
	}{
		{"ไฟดับ", false, true},
		{"ไฟดับ", true, false},
		{"", false, false},
		{"  \t\n", false, false},
	}
	for _, tt := range tests {
		if got := CanSubmit(tt.input, tt.loading); got != tt.want {
			t.Fatalf("CanSubmit(%q, %v) = %v", tt.input, tt.loading, got)
		}
	}
}

func TestTextRendererRender(t *testing.T) {
	var buf bytes.Buffer
	r := TextRenderer{Out: &buf, Width: 10}
	if err := r.Render(BuildView(sampleConversation(), true, false)); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"สถานะ: ไม่ทราบพิกัดผู้ใช้", "สังกัดการไฟฟ้า: กฟภ.อัมพวา", "อำเภอ: อัมพวา", "เปิดแผนที่ #1: https://maps.google.com/?cid=1", LoadingText} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "หม้อแปลง") > strings.Index(out, "กฟภ.อัมพวา") {
		t.Fatalf("messages out of order")
	}
}

func TestTemplatesRender(t *testing.T) {
	tmpl, err := Templates()
	if err != nil {
		t.Fatalf("Templates error: %v", err)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, PageTemplate, BuildView(sampleConversation(), false, false)); err != nil {
		t.Fatalf("execute page: %v", err)
	}
	page := buf.String()
	if !strings.Contains(page, "ความแม่นยำ: ปานกลาง") || !strings.Contains(page, "เปิดแผนที่ #2") {
		t.Fatalf("page missing card content")
	}
	buf.Reset()
	if err := tmpl.ExecuteTemplate(&buf, ConfigErrorTemplate, NewConfigErrorView()); err != nil {
		t.Fatalf("execute config error: %v", err)
	}
	if !strings.Contains(buf.String(), ConfigErrorDetail) {
		t.Fatalf("config error page missing detail")
	}
}
