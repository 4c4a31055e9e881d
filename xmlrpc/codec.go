package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fault はサーバーが返したXML-RPCフォルトを表す。
type Fault struct {
	Code    int
	Message string
}

// Error はerrorインターフェースを実装する。
func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.Message)
}

// EncodeMethodCall はメソッド呼び出しをXML-RPCリクエストボディに変換する。
func EncodeMethodCall(method string, args []Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>`)
	buf.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&buf, []byte(method)); err != nil {
		return nil, fmt.Errorf("メソッド名のエスケープに失敗: %w", err)
	}
	buf.WriteString("</methodName><params>")
	for _, arg := range args {
		buf.WriteString("<param>")
		if err := encodeValue(&buf, arg); err != nil {
			return nil, err
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

// encodeValue は1つのValueを<value>要素として書き出す。
// マップのキーはテスト可能性のため辞書順で出力する。
func encodeValue(buf *bytes.Buffer, v Value) error {
	buf.WriteString("<value>")
	switch v.Kind() {
	case KindNil:
		buf.WriteString("<nil/>")
	case KindBool:
		if v.b {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case KindInt:
		buf.WriteString("<int>")
		buf.WriteString(strconv.FormatInt(v.i, 10))
		buf.WriteString("</int>")
	case KindDouble:
		buf.WriteString("<double>")
		buf.WriteString(strconv.FormatFloat(v.d, 'f', -1, 64))
		buf.WriteString("</double>")
	case KindString:
		buf.WriteString("<string>")
		if err := xml.EscapeText(buf, []byte(v.s)); err != nil {
			return fmt.Errorf("文字列のエスケープに失敗: %w", err)
		}
		buf.WriteString("</string>")
	case KindDateTime:
		buf.WriteString("<dateTime.iso8601>")
		buf.WriteString(v.t.UTC().Format(wireDateTimeLayout))
		buf.WriteString("</dateTime.iso8601>")
	case KindBase64:
		buf.WriteString("<base64>")
		buf.WriteString(base64.StdEncoding.EncodeToString(v.bin))
		buf.WriteString("</base64>")
	case KindArray:
		buf.WriteString("<array><data>")
		for _, e := range v.arr {
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case KindStruct:
		buf.WriteString("<struct>")
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString("<member><name>")
			if err := xml.EscapeText(buf, []byte(k)); err != nil {
				return fmt.Errorf("メンバー名のエスケープに失敗: %w", err)
			}
			buf.WriteString("</name>")
			if err := encodeValue(buf, v.m[k]); err != nil {
				return err
			}
			buf.WriteString("</member>")
		}
		buf.WriteString("</struct>")
	default:
		return fmt.Errorf("エンコードできないKind: %v", v.Kind())
	}
	buf.WriteString("</value>")
	return nil
}

// wireDateTimeLayout はエンコード時のdateTime.iso8601形式。
const wireDateTimeLayout = "20060102T15:04:05"

// dateTimeLayouts はデコード時に受理するdateTime.iso8601のバリエーション。
// 仕様上は20060102T15:04:05だが、WordPressなど一部のサーバーは
// ハイフン区切りやタイムゾーン付きのISO 8601を返す。
var dateTimeLayouts = []string{
	"20060102T15:04:05",
	"20060102T15:04:05Z07:00",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseWireDateTime はdateTime.iso8601の文字列をUTCの時刻として解釈する。
// タイムゾーン指定のない形式はUTCとみなす。
func parseWireDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("不正なdateTime.iso8601: %q", s)
}

// DecodeResponse はXML-RPCレスポンスボディを解釈する。
// 正常レスポンスの場合はパラメータ列を、フォルトの場合はFaultを返す。
// XMLとして解釈できない場合のみerrorを返す。
func DecodeResponse(body []byte) ([]Value, *Fault, error) {
	d := xml.NewDecoder(bytes.NewReader(body))

	// <methodResponse>直下の<params>または<fault>を探す
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("methodResponseが見つからない")
		}
		if err != nil {
			return nil, nil, fmt.Errorf("XMLの解釈に失敗: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "methodResponse":
			continue
		case "params":
			params, err := decodeParams(d)
			if err != nil {
				return nil, nil, err
			}
			return params, nil, nil
		case "fault":
			fault, err := decodeFault(d)
			if err != nil {
				return nil, nil, err
			}
			return nil, fault, nil
		default:
			if err := d.Skip(); err != nil {
				return nil, nil, fmt.Errorf("XMLの解釈に失敗: %w", err)
			}
		}
	}
}

// decodeParams は<params>以下のパラメータ列を読み取る。
func decodeParams(d *xml.Decoder) ([]Value, error) {
	var params []Value
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("paramsの解釈に失敗: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "param":
				continue
			case "value":
				v, err := decodeValue(d)
				if err != nil {
					return nil, err
				}
				params = append(params, v)
			default:
				if err := d.Skip(); err != nil {
					return nil, fmt.Errorf("paramsの解釈に失敗: %w", err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "params" {
				return params, nil
			}
		}
	}
}

// decodeFault は<fault>以下のフォルト構造体を読み取る。
// faultCode・faultStringが欠けていても、読めた範囲でFaultを構成する。
func decodeFault(d *xml.Decoder) (*Fault, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("faultの解釈に失敗: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "value" {
				continue
			}
			v, err := decodeValue(d)
			if err != nil {
				return nil, err
			}
			fault := &Fault{}
			if code, ok := v.Field("faultCode"); ok {
				if i, ok := code.AsInt(); ok {
					fault.Code = int(i)
				}
			}
			fault.Message = v.FieldText("faultString")
			return fault, nil
		case xml.EndElement:
			if t.Name.Local == "fault" {
				return &Fault{}, nil
			}
		}
	}
}

// decodeValue は<value>の開始タグ直後から1つの値を読み取り、
// 対応する</value>まで消費する。
// 型要素を持たない裸のテキストはXML-RPC仕様どおり文字列として扱う。
func decodeValue(d *xml.Decoder) (Value, error) {
	var text strings.Builder
	typed := false
	var result Value

	for {
		tok, err := d.Token()
		if err != nil {
			return Value{}, fmt.Errorf("valueの解釈に失敗: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			v, err := decodeTypedElement(d, t)
			if err != nil {
				return Value{}, err
			}
			result = v
			typed = true
		case xml.EndElement:
			if t.Name.Local == "value" {
				if typed {
					return result, nil
				}
				return String(text.String()), nil
			}
		}
	}
}

// decodeTypedElement は<value>内の型要素を1つ読み取る。
func decodeTypedElement(d *xml.Decoder, start xml.StartElement) (Value, error) {
	switch start.Name.Local {
	case "nil":
		if err := d.Skip(); err != nil {
			return Value{}, fmt.Errorf("nilの解釈に失敗: %w", err)
		}
		return Nil(), nil
	case "boolean":
		s, err := elementText(d, start)
		if err != nil {
			return Value{}, err
		}
		s = strings.TrimSpace(s)
		return Bool(s == "1" || strings.EqualFold(s, "true")), nil
	case "int", "i4", "i8":
		s, err := elementText(d, start)
		if err != nil {
			return Value{}, err
		}
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("不正な整数: %w", err)
		}
		return Int(i), nil
	case "double":
		s, err := elementText(d, start)
		if err != nil {
			return Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("不正な浮動小数点数: %w", err)
		}
		return Double(f), nil
	case "string":
		s, err := elementText(d, start)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case "dateTime.iso8601":
		s, err := elementText(d, start)
		if err != nil {
			return Value{}, err
		}
		t, err := parseWireDateTime(s)
		if err != nil {
			// 不正な日時は欠落として扱い、マッパー側の
			// 「無効な日時は既存値を維持する」規約に委ねる
			return Nil(), nil
		}
		return DateTime(t), nil
	case "base64":
		s, err := elementText(d, start)
		if err != nil {
			return Value{}, err
		}
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return Value{}, fmt.Errorf("不正なbase64: %w", err)
		}
		return Base64(b), nil
	case "struct":
		return decodeStruct(d)
	case "array":
		return decodeArray(d)
	default:
		// 未知の型要素は中身をテキストとして読み、文字列扱いにする
		s, err := elementText(d, start)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	}
}

// elementText は単純な型要素のテキスト内容を読み取る。
func elementText(d *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return "", fmt.Errorf("%sの解釈に失敗: %w", start.Name.Local, err)
	}
	return s, nil
}

// decodeStruct は<struct>以下のメンバー列を読み取る。
func decodeStruct(d *xml.Decoder) (Value, error) {
	m := make(map[string]Value)
	var name string
	for {
		tok, err := d.Token()
		if err != nil {
			return Value{}, fmt.Errorf("structの解釈に失敗: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "member":
				name = ""
			case "name":
				s, err := elementText(d, t)
				if err != nil {
					return Value{}, err
				}
				name = strings.TrimSpace(s)
			case "value":
				v, err := decodeValue(d)
				if err != nil {
					return Value{}, err
				}
				if name != "" {
					m[name] = v
				}
			default:
				if err := d.Skip(); err != nil {
					return Value{}, fmt.Errorf("structの解釈に失敗: %w", err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return Struct(m), nil
			}
		}
	}
}

// decodeArray は<array><data>以下の要素列を読み取る。
func decodeArray(d *xml.Decoder) (Value, error) {
	var arr []Value
	for {
		tok, err := d.Token()
		if err != nil {
			return Value{}, fmt.Errorf("arrayの解釈に失敗: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "data":
				continue
			case "value":
				v, err := decodeValue(d)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, v)
			default:
				if err := d.Skip(); err != nil {
					return Value{}, fmt.Errorf("arrayの解釈に失敗: %w", err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return Array(arr...), nil
			}
		}
	}
}
