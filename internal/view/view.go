package view

// Response is the envelope returned by every /api/v1 endpoint.
type Response[T any] struct {
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Request any    `json:"request,omitempty"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Data    string `json:"data"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Request any    `json:"request,omitempty"`
	Message string `json:"message"`
}

func CreateResponse[T any](data T, err error, req any, message string) Response[T] {
	res := Response[T]{
		Data:    data,
		Message: message,
	}
	if err != nil {
		res.Error = err.Error()
		res.Request = req
	}
	return res
}
