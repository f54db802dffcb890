package config

type WorkerKeyStruct struct {
	GenerationQueue     string
	PersistAnswersQueue string
}

var WorkerKey = &WorkerKeyStruct{
	GenerationQueue:     "generation_queue",
	PersistAnswersQueue: "persist_answers_queue",
}
