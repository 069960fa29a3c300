// Package validation checks configuration and request values.
//
// Struct validation uses go-playground/validator tags. Domain packages add
// their own tags with RegisterRule; transcription registers whisper_model
// and language_code so configuration can be declared as:
//
//	type Settings struct {
//	    Model    string  `mapstructure:"model" validate:"required,whisper_model"`
//	    Language string  `mapstructure:"language" validate:"required,language_code"`
//	    Chunk    float64 `mapstructure:"chunk_size" validate:"gte=0"`
//	}
//	err := validation.Validate(settings)
//
// The programmatic Validator collects ad hoc field errors for request
// handlers.
package validation
