package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/climakit/eofkit/pkg/errors"
)

// SaveModel writes a model to a file using gob encoding. Models with
// unexported fitted state implement GobEncode/GobDecode so that the
// full state survives the round trip.
//
// Example:
//
//	eof := models.NewEOF(models.WithNModes(5))
//	// ... fit ...
//	err := model.SaveModel(eof, "eof.gob")
func SaveModel(model interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create model file")
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}

	return nil
}

// LoadModel restores a model from a file written by SaveModel. The
// model argument must be a pointer to the concrete type that was
// saved.
//
// Example:
//
//	eof := models.NewEOF()
//	err := model.LoadModel(eof, "eof.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open model file")
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}

	return nil
}

// SaveModelToWriter writes a model to w using gob encoding.
func SaveModelToWriter(model interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader restores a model from r. The model argument
// must be a pointer to the concrete type that was saved.
func LoadModelFromReader(model interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
