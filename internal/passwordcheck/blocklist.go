package passwordcheck

// commonPasswords is a blocklist of frequently used passwords, lowercased.
// Matching strips trailing digits first, so "password2024" is also caught.
var commonPasswords = map[string]bool{
	"password":    true,
	"passwort":    true,
	"passw0rd":    true,
	"p@ssword":    true,
	"qwerty":      true,
	"qwertyuiop":  true,
	"abc123":      true,
	"letmein":     true,
	"welcome":     true,
	"monkey":      true,
	"dragon":      true,
	"master":      true,
	"sunshine":    true,
	"princess":    true,
	"football":    true,
	"baseball":    true,
	"superman":    true,
	"batman":      true,
	"trustno1":    true,
	"iloveyou":    true,
	"admin":       true,
	"administrator": true,
	"root":        true,
	"login":       true,
	"guest":       true,
	"secret":      true,
	"shadow":      true,
	"hunter":      true,
	"freedom":     true,
	"whatever":    true,
	"starwars":    true,
	"pokemon":     true,
	"cheese":      true,
	"summer":      true,
	"winter":      true,
	"hello":       true,
	"charlie":     true,
	"donald":      true,
	"michael":     true,
	"jordan":      true,
	"liverpool":   true,
	"arsenal":     true,
	"chelsea":     true,
	"michelle":    true,
	"jessica":     true,
	"ashley":      true,
	"nicole":      true,
	"daniel":      true,
	"babygirl":    true,
	"lovely":      true,
	"flower":      true,
	"computer":    true,
	"internet":    true,
	"samsung":     true,
	"changeme":    true,
	"default":     true,
	"test":        true,
	"testing":     true,
}
