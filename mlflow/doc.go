// Package mlflow implements promptreg.Store against an MLflow tracking server's
// model-registry REST API. Prompts are registered models tagged
// mlflow.prompt.is_prompt=true and each version carries its body in the
// mlflow.prompt.text tag. Use New for an http(s) tracking URI and NewSageMaker for
// an Amazon SageMaker managed tracking server ARN; requests to SageMaker are signed
// with AWS Signature Version 4.
//
// The client keeps no cache: every promptreg operation maps to one or a few REST calls.
package mlflow
