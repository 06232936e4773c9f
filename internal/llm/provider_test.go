package llm

import "testing"

func TestMessage_HasImagePart(t *testing.T) {
	textOnly := Message{Role: "user", Parts: []ContentPart{{Type: "text", Text: "hello"}}}
	if textOnly.HasImagePart() {
		t.Fatal("expected text-only message to have no image part")
	}

	withImage := Message{Role: "user", Parts: []ContentPart{
		{Type: "text", Text: "look at this"},
		{Type: ImageContentType, ImageURL: "data:image/png;base64,abc"},
	}}
	if !withImage.HasImagePart() {
		t.Fatal("expected message with image_url part to report HasImagePart")
	}

	plainString := Message{Role: "user", Content: "no parts at all"}
	if plainString.HasImagePart() {
		t.Fatal("expected plain-string message to have no image part")
	}
}

func TestToWireMessage_PlainContentVsParts(t *testing.T) {
	m := Message{Role: "user", Content: "hi"}
	wm := toWireMessage(m)
	if s, ok := wm.Content.(string); !ok || s != "hi" {
		t.Fatalf("expected plain string content, got %#v", wm.Content)
	}

	m2 := Message{Role: "user", Parts: []ContentPart{{Type: "text", Text: "hi"}}}
	wm2 := toWireMessage(m2)
	if _, ok := wm2.Content.([]wireContentPart); !ok {
		t.Fatalf("expected parts content, got %#v", wm2.Content)
	}
}
