package classifier

import "github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"

// SeedExample is one labeled utterance in the bootstrap training corpus.
type SeedExample struct {
	Text  string
	Layer memtypes.Layer
}

// SeedCorpus is the fixed ~30-utterance, 10-per-layer corpus the classifier
// trains on in a single pass before it has ever seen a correction. It is
// replayed verbatim, in this order, by both the first-start seeding path and
// retrain_from_history, so that routing behavior is reproducible across
// restarts given the same embedding provider.
var SeedCorpus = []SeedExample{
	// IMM: explicit first-person identity declarations.
	{"My name is Alex", memtypes.IMM},
	{"I am vegetarian", memtypes.IMM},
	{"I'm allergic to peanuts", memtypes.IMM},
	{"I speak Spanish and English", memtypes.IMM},
	{"Call me Jay", memtypes.IMM},
	{"I am Catholic", memtypes.IMM},
	{"My preferred name is Sam", memtypes.IMM},
	{"I don't eat pork", memtypes.IMM},
	{"I'm non-binary", memtypes.IMM},
	{"My diet is vegan", memtypes.IMM},

	// EMM: conversational events, plans, and feelings tied to a moment.
	{"I had coffee with Sarah this morning", memtypes.EMM},
	{"We watched a movie last night and it was great", memtypes.EMM},
	{"I'm feeling really stressed about tomorrow's meeting", memtypes.EMM},
	{"My sister called me yesterday to catch up", memtypes.EMM},
	{"I went for a run this afternoon", memtypes.EMM},
	{"We had a big argument about chores last week", memtypes.EMM},
	{"I just finished a great book about space travel", memtypes.EMM},
	{"My boss gave me some tough feedback today", memtypes.EMM},
	{"I'm excited for the trip we're planning next month", memtypes.EMM},
	{"I forgot my umbrella and got soaked on the way home", memtypes.EMM},

	// KMM: durable skills, concepts, and facts.
	{"I know how to code in Python", memtypes.KMM},
	{"I'm skilled in woodworking", memtypes.KMM},
	{"I specialize in database performance tuning", memtypes.KMM},
	{"Photosynthesis converts sunlight into chemical energy", memtypes.KMM},
	{"I'm an expert in classical guitar", memtypes.KMM},
	{"The mitochondria is the powerhouse of the cell", memtypes.KMM},
	{"I know how to bake sourdough bread from scratch", memtypes.KMM},
	{"A binary search runs in logarithmic time", memtypes.KMM},
	{"I'm skilled at public speaking", memtypes.KMM},
	{"I know how to change a car's oil", memtypes.KMM},
}
