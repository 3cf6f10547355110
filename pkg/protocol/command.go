package protocol

import (
	"bytes"
	"errors"
)

// Verb identifies a request command.
type Verb string

const (
	VerbRegister        Verb = "REGISTER"
	VerbAuthenticate    Verb = "AUTHENTICATE"
	VerbJoin            Verb = "JOIN"
	VerbLeave           Verb = "LEAVE"
	VerbSendRoom        Verb = "SEND_ROOM"
	VerbSendPrivate     Verb = "SEND_PRIVATE"
	VerbList            Verb = "LIST"
	VerbKickUser        Verb = "KICK_USER"
	VerbBanUser         Verb = "BAN_USER"
	VerbGrantModerator  Verb = "GRANT_MODERATOR"
	VerbRevokeModerator Verb = "REVOKE_MODERATOR"
	VerbShowProfile     Verb = "SHOW_PROFILE"
	VerbUpdateProfile   Verb = "UPDATE_PROFILE"
	VerbSendFile        Verb = "SEND_FILE"
	VerbGetFile         Verb = "GET_FILE"
	VerbExit            Verb = "EXIT"
)

// Delimiter separates fields inside a request payload.
const Delimiter = ':'

var (
	// ErrUnknownVerb means the command word is not part of the protocol.
	ErrUnknownVerb = errors.New("protocol: unknown command")
	// ErrMalformed means the command word is known but the argument
	// fields do not match its grammar.
	ErrMalformed = errors.New("protocol: malformed request")
)

// shape describes the argument grammar of one verb: the number of
// fixed (delimiter-free) arguments, and whether a rest-of-frame tail
// follows them. A tail is split off by bounded splitting, never by
// splitting the whole payload, so it may contain the delimiter.
type shape struct {
	fixedArgs int
	hasTail   bool
}

var shapes = map[Verb]shape{
	VerbRegister:        {fixedArgs: 1, hasTail: true}, // username, password tail
	VerbAuthenticate:    {fixedArgs: 1, hasTail: true}, // username, password tail
	VerbJoin:            {fixedArgs: 1},
	VerbLeave:           {fixedArgs: 1},
	VerbSendRoom:        {fixedArgs: 1, hasTail: true}, // room, body tail
	VerbSendPrivate:     {fixedArgs: 1, hasTail: true}, // username, body tail
	VerbList:            {},
	VerbKickUser:        {fixedArgs: 2}, // room, username
	VerbBanUser:         {fixedArgs: 2},
	VerbGrantModerator:  {fixedArgs: 2},
	VerbRevokeModerator: {fixedArgs: 2},
	VerbShowProfile:     {fixedArgs: 1},
	VerbUpdateProfile:   {fixedArgs: 1, hasTail: true}, // picture, status tail
	VerbSendFile:        {fixedArgs: 2, hasTail: true}, // room, filename, bytes tail
	VerbGetFile:         {fixedArgs: 2}, // room, filename
	VerbExit:            {},
}

// Request is one parsed command frame. Args holds the fixed fields in
// order; Tail holds the rest-of-frame content for verbs that carry it
// and is nil otherwise. Tail stays []byte because SEND_FILE payloads
// are binary.
type Request struct {
	Verb Verb
	Args []string
	Tail []byte
}

// ParseRequest parses a frame payload into a Request. It returns
// ErrUnknownVerb for an unrecognized command word and ErrMalformed when
// the fields do not match the verb's grammar.
func ParseRequest(payload []byte) (*Request, error) {
	if len(payload) == 0 {
		return nil, ErrMalformed
	}

	word := payload
	rest := []byte(nil)
	if i := bytes.IndexByte(payload, Delimiter); i >= 0 {
		word = payload[:i]
		rest = payload[i+1:]
	}

	verb := Verb(word)
	sh, ok := shapes[verb]
	if !ok {
		return nil, ErrUnknownVerb
	}

	req := &Request{Verb: verb}
	if sh.fixedArgs == 0 && !sh.hasTail {
		// Tolerate a bare trailing delimiter ("LIST:") but nothing more.
		if len(rest) != 0 {
			return nil, ErrMalformed
		}
		return req, nil
	}
	if rest == nil {
		return nil, ErrMalformed
	}

	// Bounded split: exactly fixedArgs fields, plus one more part for
	// the tail when the verb has one. Splitting stops there, so tails
	// keep embedded delimiters.
	n := sh.fixedArgs
	if sh.hasTail {
		n++
	}
	parts := bytes.SplitN(rest, []byte{Delimiter}, n)
	if len(parts) != n {
		return nil, ErrMalformed
	}

	req.Args = make([]string, sh.fixedArgs)
	for i := 0; i < sh.fixedArgs; i++ {
		if len(parts[i]) == 0 {
			return nil, ErrMalformed
		}
		req.Args[i] = string(parts[i])
	}
	if sh.hasTail {
		req.Tail = parts[sh.fixedArgs]
	}
	return req, nil
}

// AppendRequest encodes a request into a frame payload. It is the
// inverse of ParseRequest and is what clients use to build commands.
func AppendRequest(verb Verb, args []string, tail []byte) []byte {
	buf := []byte(verb)
	for _, a := range args {
		buf = append(buf, Delimiter)
		buf = append(buf, a...)
	}
	if tail != nil {
		buf = append(buf, Delimiter)
		buf = append(buf, tail...)
	}
	return buf
}
