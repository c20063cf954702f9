package signal

import "github.com/pion/randutil"

const roomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewRoomID generates an opaque client-side room token of the form
// room_<random>. The relay never validates the format.
func NewRoomID() string {
	suffix, err := randutil.GenerateCryptoRandomString(12, roomAlphabet)
	if err != nil {
		// math/rand fallback keeps the client usable when the
		// system entropy source is unavailable.
		suffix = randutil.NewMathRandomGenerator().GenerateString(12, roomAlphabet)
	}
	return "room_" + suffix
}
