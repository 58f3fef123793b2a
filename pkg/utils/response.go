package utils

// ResponseData is the envelope of every REST response.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded aborts the current handler. middleware.Recovery turns the
// panic into a ResponseData using the error's status when it is a GenericError.
func PanicIfNeeded(err error) {
	if err != nil {
		panic(err)
	}
}
