package tradingview

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"tvhook/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

var (
	doubledKeyQuote = regexp.MustCompile(`([{,]\s*)""+`)
	trailingComma   = regexp.MustCompile(`,\s*}$`)
)

// DecodeAlertMessage 解析 order_alert_message 中嵌入的参数串。
// 依次尝试：严格 JSON → 清洗后的 JSON → 宽松的 key/value 扫描。
// 无法识别的片段会被跳过，永远不会返回错误。
func DecodeAlertMessage(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	if out, ok := decodeObject(raw); ok {
		return out
	}
	if out, ok := decodeObject(cleanAlertMessage(raw)); ok {
		return out
	}
	if block, ok := jsonutil.ExtractObject(raw); ok {
		if out, ok := decodeObject(block); ok {
			return out
		}
	}
	return decodePairs(raw)
}

// EncodeAlertMessage serializes params back to the canonical embedded form.
func EncodeAlertMessage(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	buf, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(buf)
}

func decodeObject(raw string) (map[string]any, bool) {
	if !gjson.Valid(raw) {
		return nil, false
	}
	res := gjson.Parse(raw)
	if !res.IsObject() {
		return nil, false
	}
	out := make(map[string]any)
	res.ForEach(func(key, value gjson.Result) bool {
		v := value.Value()
		if str, ok := v.(string); ok {
			v = validUTF8(str)
		}
		out[validUTF8(key.String())] = v
		return true
	})
	return out, true
}

func cleanAlertMessage(raw string) string {
	s := strings.TrimSpace(raw)
	// "{...}" delivered as a JSON string literal
	if strings.HasPrefix(s, `"{`) && strings.HasSuffix(s, `}"`) {
		s = s[1 : len(s)-1]
	}
	for strings.HasPrefix(s, `""`) {
		s = s[1:]
	}
	s = doubledKeyQuote.ReplaceAllString(s, `$1"`)
	s = strings.TrimRight(s, ", \t\r\n")
	if !strings.HasPrefix(s, "{") {
		s = "{" + s
	}
	if !strings.HasSuffix(s, "}") {
		s += "}"
	}
	return trailingComma.ReplaceAllString(s, "}")
}

func decodePairs(raw string) map[string]any {
	out := make(map[string]any)
	for _, p := range jsonutil.ScanPairs(raw) {
		key, val := validUTF8(p.Key), validUTF8(p.Value)
		if p.Quoted {
			out[key] = val
			continue
		}
		out[key] = typedScalar(val)
	}
	return out
}

// validUTF8 替换非法字节，保证 decode → encode → decode 结果一致。
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func typedScalar(v string) any {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return v
}
