package kblog

// ErrorKind は失敗したリモート操作のエラー分類を表す。
// 単一の操作に起因するエラーはすべてその操作の対象オブジェクトに
// スコープされ、バックエンドのインスタンス自体は使用可能なまま残る。
type ErrorKind int

const (
	// TransportFault はRPC・HTTP・フィード層が報告した失敗。
	TransportFault ErrorKind = iota
	// ParsingError はレスポンスの形状が期待と一致しなかった失敗。
	ParsingError
	// AuthenticationError は認証情報が拒否された失敗。
	AuthenticationError
	// NotSupported は選択したバックエンドのプロトコルが提供しない操作。
	NotSupported
	// Other はその他の失敗。呼び出し側がnilのドメインオブジェクトを渡した場合など。
	Other
)

// String はErrorKindの文字列表現を返す。メトリクスのラベルにも使用される。
func (k ErrorKind) String() string {
	switch k {
	case TransportFault:
		return "transport_fault"
	case ParsingError:
		return "parsing_error"
	case AuthenticationError:
		return "authentication_error"
	case NotSupported:
		return "not_supported"
	case Other:
		return "other"
	default:
		return "unknown"
	}
}
