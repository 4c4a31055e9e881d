// Package correlator は進行中のリモート呼び出しとドメインオブジェクトの
// 対応付けを管理する。
//
// 各バックエンドのインスタンスが自身のTableを所有し、リモート呼び出しの
// 発行前にトークンを採番してペンディング状態を登録する。結果またはフォルト
// の到着時にTakeで取り出すことで、コールバックを元のオブジェクトに帰属させる。
package correlator

import "sync"

// Table はトークンからペンディング状態への対応表を表す。
// トークンはインスタンスごとに単調増加し、解放後に再利用されることはない。
type Table[T any] struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]T
}

// New は初期トークン値baseから採番を始める新しいTableを生成する。
func New[T any](base uint64) *Table[T] {
	return &Table[T]{
		next:    base,
		pending: make(map[uint64]T),
	}
}

// Issue はペンディング状態vを登録し、その呼び出しのトークンを採番して返す。
// リモート呼び出しを発行する前に呼び出すこと。
func (t *Table[T]) Issue(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	token := t.next
	t.next++
	t.pending[token] = v
	return token
}

// Take はトークンに対応するペンディング状態を取り出し、エントリを解放する。
// 解決と解放は1回のロックの下で行われ、同一トークンに対する2回目の呼び出しは
// 必ずfalseを返す。未知のトークンもfalseを返す（クラッシュさせない）。
func (t *Table[T]) Take(token uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.pending[token]
	if !ok {
		var zero T
		return zero, false
	}
	delete(t.pending, token)
	return v, true
}

// Len は現在ペンディング中のエントリ数を返す。
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
