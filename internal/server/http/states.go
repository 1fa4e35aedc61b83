package http

type State uint8

const (
	// WaitRequest accumulates bytes until a complete request head arrives.
	WaitRequest State = iota
	// RecvReqBody accumulates the declared number of body bytes.
	RecvReqBody
	// SendHeaders is a response being produced by other means than a file, e.g. an
	// error page or a Responder.
	SendHeaders
	// SendData streams the opened file through the response backend.
	SendData
	// Finished is terminal: the connection is closed once the send queue drains.
	Finished
)

func (s State) String() string {
	switch s {
	case WaitRequest:
		return "WAIT_REQUEST"
	case RecvReqBody:
		return "RECV_REQBODY"
	case SendHeaders:
		return "SEND_HEADERS"
	case SendData:
		return "SEND_DATA"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}
