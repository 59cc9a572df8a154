package lisper_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/svoctor/lisper-go"
	"github.com/svoctor/lisper-go/internal/config"
	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/ports"
)

// ExamplePlayground_Eval evaluates one form with an in-process evaluator.
func ExamplePlayground_Eval() {
	upper := ports.EvaluatorFunc(func(ctx context.Context, source string) (string, error) {
		return strings.ToUpper(source), nil
	})

	pg, err := lisper.New(config.Default(),
		lisper.WithProvider(ports.Static("upper", upper)),
		lisper.WithLogger(logging.NewNop()),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close(context.Background())

	call, err := pg.Eval(context.Background(), "(quote hello)")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(call.Output())
	// Output: (QUOTE HELLO)
}
