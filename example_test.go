package promptreg_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/memstore"
)

func Example() {
	ctx := context.Background()
	client := promptreg.New(memstore.New())

	v1, err := client.Register(ctx, "finance-bot", "You are a helper who knows about stocks.",
		promptreg.WithCommitMessage("First prompt"))
	if err != nil {
		panic(err)
	}
	v2, err := client.Register(ctx, "finance-bot", "You are a finance specialist.")
	if err != nil {
		panic(err)
	}
	if _, err := client.SetAlias(ctx, "finance-bot", v2.Version, "Production"); err != nil {
		panic(err)
	}
	prod, err := client.LoadURI(ctx, "prompts:/finance-bot@Production")
	if err != nil {
		panic(err)
	}
	fmt.Println(v1.URI(), v2.URI())
	fmt.Println(prod.Body)
	// Output:
	// prompts:/finance-bot/1 prompts:/finance-bot/2
	// You are a finance specialist.
}

func ExampleTemplate_Format() {
	tpl := &promptreg.Template{Name: "qa", Body: "Context: {{ context }}\nQuestion: {{ question }}"}
	text, err := tpl.Format(map[string]any{"context": "AAPL closed at 190.", "question": "Where did AAPL close?"})
	if err != nil {
		panic(err)
	}
	fmt.Println(text)
	// Output:
	// Context: AAPL closed at 190.
	// Question: Where did AAPL close?
}

func ExampleTemplate_FormatStruct() {
	tpl := &promptreg.Template{Name: "greet", Body: "Hello, {{ name }}!"}
	type Payload struct {
		Name string `prompt:"name"`
	}
	text, err := tpl.FormatStruct(&Payload{Name: "Alice"})
	if err != nil {
		panic(err)
	}
	fmt.Println(text)
	// Output: Hello, Alice!
}

func ExampleParseURI() {
	name, sel, err := promptreg.ParseURI("prompts:/finance-bot@Production")
	if err != nil {
		panic(err)
	}
	fmt.Println(name, sel)
	// Output: finance-bot alias "Production"
}

func ExampleClient_Load_notFound() {
	client := promptreg.New(memstore.New())
	_, err := client.Load(context.Background(), "finance-bot", promptreg.ByVersion(99))
	fmt.Println(errors.Is(err, promptreg.ErrNotFound))
	// Output: true
}
