package client

// Result は操作の結果。成功値かエラーのどちらか一方のみを持つ。
type Result[T any] struct {
	Data T
	Err  error
}

// OK は成功結果を返す。
func OK[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

// Fail は失敗結果を返す。Dataはゼロ値になる。
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Ok は成功したかを返す。
func (r Result[T]) Ok() bool {
	return r.Err == nil
}
