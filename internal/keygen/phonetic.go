package keygen

const (
	consonants = "bcdfghjklmnpqrstvwxyz"
	vowels     = "aeiou"
)

// Phonetic produces pronounceable keys by alternating consonants and
// vowels, starting with either.
type Phonetic struct {
	length int
}

// NewPhonetic creates a phonetic key generator
func NewPhonetic(length int) *Phonetic {
	return &Phonetic{length: length}
}

// Generate returns a pronounceable key not in attempted
func (p *Phonetic) Generate(attempted map[string]struct{}) (string, error) {
	return GeneratorFunc(p.draw).Generate(attempted)
}

func (p *Phonetic) draw() (string, error) {
	start, err := drawFrom("01", 1)
	if err != nil {
		return "", err
	}
	consonantFirst := start == "0"

	out := make([]byte, 0, p.length)
	for i := 0; i < p.length; i++ {
		set := vowels
		if (i%2 == 0) == consonantFirst {
			set = consonants
		}
		c, err := drawFrom(set, 1)
		if err != nil {
			return "", err
		}
		out = append(out, c[0])
	}
	return string(out), nil
}
