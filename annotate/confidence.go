package annotate

// HasConfidence reports whether any annotation, metric or nested answer in
// the labels carries a confidence score. Legacy import paths use this to
// decide whether to warn before dropping scores.
func HasConfidence(labels []*Label) bool {
	for _, label := range labels {
		for _, a := range label.Annotations {
			if annotationHasConfidence(a) {
				return true
			}
		}
	}
	return false
}

func annotationHasConfidence(a Annotation) bool {
	switch v := a.(type) {
	case *ObjectAnnotation:
		return objectHasConfidence(v)
	case *VideoObjectAnnotation:
		return objectHasConfidence(&v.ObjectAnnotation)
	case *DICOMObjectAnnotation:
		return objectHasConfidence(&v.ObjectAnnotation)
	case *ClassificationAnnotation:
		return classificationHasConfidence(v)
	case *VideoClassificationAnnotation:
		return classificationHasConfidence(&v.ClassificationAnnotation)
	case *ScalarMetric:
		// A per-threshold map is itself keyed on confidence
		return v.Value.PerThreshold != nil
	case *ConfusionMatrixMetric:
		return v.Value.PerThreshold != nil
	default:
		return false
	}
}

func objectHasConfidence(obj *ObjectAnnotation) bool {
	if obj.Confidence != nil {
		return true
	}
	for i := range obj.Classifications {
		if classificationHasConfidence(&obj.Classifications[i]) {
			return true
		}
	}
	return false
}

func classificationHasConfidence(c *ClassificationAnnotation) bool {
	if c.Confidence != nil {
		return true
	}
	switch value := c.Value.(type) {
	case Text:
		return value.Confidence != nil
	case Radio:
		return answerHasConfidence(value.Answer)
	case Checklist:
		for _, answer := range value.Answers {
			if answerHasConfidence(answer) {
				return true
			}
		}
	case Dropdown:
		for _, answer := range value.Answers {
			if answerHasConfidence(answer) {
				return true
			}
		}
	}
	return false
}

func answerHasConfidence(answer ClassificationAnswer) bool {
	if answer.Confidence != nil {
		return true
	}
	for i := range answer.Classifications {
		if classificationHasConfidence(&answer.Classifications[i]) {
			return true
		}
	}
	return false
}
