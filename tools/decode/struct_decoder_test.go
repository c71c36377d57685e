package decode

import "testing"

type patchTarget struct {
	ElementID string         `json:"elementId"`
	Width     int            `json:"width"`
	Extra     map[string]any `json:"extra"`
}

func TestDecodeMapWeakTyping(t *testing.T) {
	// JSON 数字解出来是 float64，宽松模式要能落到 int
	out, err := DecodeMap[patchTarget](map[string]any{
		"elementId": "chart-1",
		"width":     640.0,
		"extra":     map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	if out.ElementID != "chart-1" || out.Width != 640 {
		t.Fatalf("decoded = %+v", out)
	}
	if out.Extra["k"] != "v" {
		t.Fatalf("nested map lost: %+v", out.Extra)
	}
}

func TestDecodeMapNil(t *testing.T) {
	if _, err := DecodeMap[patchTarget](nil); err == nil {
		t.Fatalf("nil map should error")
	}
}

func TestDecodeMapStrict(t *testing.T) {
	// 关掉宽松模式后字符串进不了 int 字段
	_, err := DecodeMap[patchTarget](map[string]any{"width": "640"}, Options{WeaklyTypedInput: false})
	if err == nil {
		t.Fatalf("strict decode should reject string into int")
	}
}
