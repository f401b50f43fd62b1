package service

import (
	"testing"

	"github.com/unclebandit/outreach-engine/internal/model"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]string
		want     string
	}{
		{
			name:     "all placeholders",
			template: "Hi {first_name}, visit us in {city}!",
			data:     map[string]string{"first_name": "Alice", "city": "Berlin"},
			want:     "Hi Alice, visit us in Berlin!",
		},
		{
			name:     "missing value is dropped",
			template: "Hi {first_name}{last_name}!",
			data:     map[string]string{"first_name": "Alice"},
			want:     "Hi Alice!",
		},
		{
			name:     "no placeholders",
			template: "Hello there",
			data:     map[string]string{"first_name": "Alice"},
			want:     "Hello there",
		},
		{
			name:     "values are not expanded again",
			template: "Hi {first_name} from {company}",
			data:     map[string]string{"first_name": "Eve", "company": "{first_name} & {city} Ltd"},
			want:     "Hi Eve from {first_name} & {city} Ltd",
		},
		{
			name:     "braces that are not placeholders survive",
			template: "Price {EUR} {1}",
			data:     nil,
			want:     "Price {EUR} {1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderTemplate(tt.template, tt.data)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderTemplateIsDeterministic(t *testing.T) {
	data := map[string]string{"first_name": "Eve", "company": "{first_name}", "city": "{company}"}
	want := RenderTemplate("Hi {first_name}, {company} in {city}", data)
	for i := 0; i < 200; i++ {
		if got := RenderTemplate("Hi {first_name}, {company} in {city}", data); got != want {
			t.Fatalf("render %d: got %q, want %q", i, got, want)
		}
	}
	if want != "Hi Eve, {first_name} in {company}" {
		t.Errorf("got %q", want)
	}
}

func TestTemplateDataLinksWin(t *testing.T) {
	e := &model.Entity{Category: "cafe", Address: "a@example.com", Attrs: map[string]string{"booking_url": "spoof", "first_name": "Ada"}}
	data := templateData(e, map[string]string{"booking_url": "https://x/t/1"})

	if data["booking_url"] != "https://x/t/1" {
		t.Errorf("booking_url = %q", data["booking_url"])
	}
	if data["category"] != "cafe" || data["address"] != "a@example.com" || data["first_name"] != "Ada" {
		t.Errorf("unexpected data %v", data)
	}
}
