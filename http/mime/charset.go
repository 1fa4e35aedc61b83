package mime

type Charset = string

const (
	Unset Charset = ""
	UTF8  Charset = "utf-8"
	ASCII Charset = "us-ascii"
)
