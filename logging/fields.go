package logging

// Field names shared by every structured log line.
const (
	FieldRunID      = "run_id"
	FieldModel      = "model"
	FieldPath       = "path"
	FieldRows       = "rows"
	FieldCount      = "count"
	FieldAccuracy   = "accuracy"
	FieldPrecision  = "precision"
	FieldRecall     = "recall"
	FieldF1         = "f1_score"
	FieldCVMean     = "cv_mean"
	FieldBestModel  = "best_model"
	FieldDurationMS = "duration_ms"
	FieldPrediction = "prediction"
	FieldConfidence = "confidence"
	FieldCached     = "cached"
	FieldEvent      = "event"
)
