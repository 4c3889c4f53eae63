package layers

import (
	"fmt"
	"io"

	humanize "github.com/dustin/go-humanize"
)

const bytesPerValue = 8 // float64

// PrintSummary writes the model structure followed by parameter and memory totals
func PrintSummary(w io.Writer, name string, model *Sequential, inputFeatures int) {
	fmt.Fprintf(w, "Model Architecture:\n")
	fmt.Fprintf(w, "%s(\n", name)
	for i, m := range model.Modules {
		fmt.Fprintf(w, "  (%d): %s\n", i, m.String())
	}
	fmt.Fprintf(w, ")\n\n")

	params := ParameterCount(model)
	var buffers int64
	for _, t := range model.State() {
		r, c := t.Value.Dims()
		buffers += int64(r * c)
	}
	buffers -= params

	fmt.Fprintf(w, "Trainable parameters: %s\n", humanize.Comma(params))
	fmt.Fprintf(w, "Non-trainable buffers: %s\n", humanize.Comma(buffers))
	fmt.Fprintf(w, "Input size per sample: %s\n", humanize.Bytes(uint64(inputFeatures*bytesPerValue)))
	fmt.Fprintf(w, "Params size: %s\n\n", humanize.Bytes(uint64((params+buffers)*bytesPerValue)))
}
