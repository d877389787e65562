package responses

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}

type GeneralResponse[T any] struct {
	Status string `json:"status"`
	Result T      `json:"result"`
}

// RejectedResponse carries the post as it was restored after a failed
// change, so the client can re-render it.
type RejectedResponse[T any] struct {
	ErrorResponse
	Result T `json:"result,omitempty"`
}

const ResponseCodeOk = "000000"
