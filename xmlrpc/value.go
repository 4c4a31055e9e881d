// Package xmlrpc はXML-RPCのワイヤー表現と非同期クライアントを提供する。
//
// サーバーのレスポンスは動的型付けのペイロードであるため、タグ付き
// ユニオンのValue型として表現する。各アクセサは形状が一致しない場合に
// okフラグで通知し、呼び出し側に「期待と異なる形状」の処理を強制する。
package xmlrpc

import (
	"strconv"
	"time"
)

// Kind はValueが保持する型タグを表す。
type Kind int

const (
	// KindNil は値なし（<nil/>または欠落）。
	KindNil Kind = iota
	// KindBool は真偽値。
	KindBool
	// KindInt は整数。
	KindInt
	// KindDouble は浮動小数点数。
	KindDouble
	// KindString は文字列。
	KindString
	// KindDateTime は日時（dateTime.iso8601）。
	KindDateTime
	// KindBase64 はバイナリ（base64）。
	KindBase64
	// KindArray は順序付きリスト。
	KindArray
	// KindStruct は文字列キーのマップ。
	KindStruct
)

// String はKindの文字列表現を返す。
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindDateTime:
		return "dateTime"
	case KindBase64:
		return "base64"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Value はXML-RPCの動的型付き値を表すタグ付きユニオン。
// ゼロ値はKindNilの値として扱える。
type Value struct {
	kind Kind
	b    bool
	i    int64
	d    float64
	s    string
	t    time.Time
	bin  []byte
	arr  []Value
	m    map[string]Value
}

// Nil は値なしのValueを返す。
func Nil() Value { return Value{kind: KindNil} }

// Bool は真偽値のValueを生成する。
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int は整数のValueを生成する。
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Double は浮動小数点数のValueを生成する。
func Double(d float64) Value { return Value{kind: KindDouble, d: d} }

// String は文字列のValueを生成する。
func String(s string) Value { return Value{kind: KindString, s: s} }

// DateTime は日時のValueを生成する。
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t} }

// Base64 はバイナリのValueを生成する。
func Base64(b []byte) Value { return Value{kind: KindBase64, bin: b} }

// Array は順序付きリストのValueを生成する。
func Array(values ...Value) Value { return Value{kind: KindArray, arr: values} }

// Struct は文字列キーのマップのValueを生成する。
func Struct(m map[string]Value) Value { return Value{kind: KindStruct, m: m} }

// Strings は文字列のリストのValueを生成する。
func Strings(list []string) Value {
	arr := make([]Value, 0, len(list))
	for _, s := range list {
		arr = append(arr, String(s))
	}
	return Array(arr...)
}

// Kind はこの値の型タグを返す。
func (v Value) Kind() Kind { return v.kind }

// AsBool は真偽値を返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt は整数を返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsDouble は浮動小数点数を返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsDouble() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.d, true
}

// AsString は文字列を返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsTime は日時を返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsTime() (time.Time, bool) {
	if v.kind != KindDateTime {
		return time.Time{}, false
	}
	return v.t, true
}

// AsBytes はバイナリを返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBase64 {
		return nil, false
	}
	return v.bin, true
}

// AsArray はリストを返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsStruct はマップを返す。型が一致しない場合はokがfalseとなる。
func (v Value) AsStruct() (map[string]Value, bool) {
	if v.kind != KindStruct {
		return nil, false
	}
	return v.m, true
}

// Text は文字列型の場合のみ内容を返し、それ以外は空文字列を返す。
// 「欠落や型不一致は空文字列として扱い、エラーとしない」という
// レスポンスマッパーの寛容な規約のための補助関数。
func (v Value) Text() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// IDText はサーバーが採番するIDを文字列として返す。
// 文字列型はそのまま、整数型は10進文字列に変換して返す。サーバーによって
// 投稿IDを文字列で返すものと数値で返すものがあるため、両方を受け付ける。
// それ以外の型は空文字列となる。
func (v Value) IDText() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return ""
	}
}

// Field はマップ型のフィールドを名前で引く。
// マップでない場合や名前が存在しない場合はokがfalseとなる。
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindStruct {
		return Value{}, false
	}
	f, ok := v.m[name]
	return f, ok
}

// FieldText はマップ型のフィールドを文字列として引く。
// 欠落や型不一致は空文字列となる。
func (v Value) FieldText(name string) string {
	f, ok := v.Field(name)
	if !ok {
		return ""
	}
	return f.Text()
}

// FieldIDText はマップ型のID系フィールドを文字列として引く。
// 整数型のIDも10進文字列として受け付ける。欠落時は空文字列となる。
func (v Value) FieldIDText(name string) string {
	f, ok := v.Field(name)
	if !ok {
		return ""
	}
	return f.IDText()
}

// StringList はリスト型の文字列要素を返す。
// リストでない場合はokがfalseとなる。文字列以外の要素は読み飛ばす。
func (v Value) StringList() ([]string, bool) {
	arr, ok := v.AsArray()
	if !ok {
		return nil, false
	}
	list := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.AsString(); ok {
			list = append(list, s)
		}
	}
	return list, true
}
