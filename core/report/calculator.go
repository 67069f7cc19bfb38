package report

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Calculator computes a student's final grade for one subject from raw task scores.
type Calculator struct {
	scoring Scoring
}

func NewCalculator(scoring Scoring) *Calculator {
	return &Calculator{scoring: scoring}
}

func (c *Calculator) Compute(ctx context.Context, studentID, subjectID, classID, semesterID string) (Aggregation, error) {
	tasks, err := c.scoring.Tasks(ctx, classID, subjectID, semesterID)
	if err != nil {
		return Aggregation{}, errors.Wrap(err, "querying tasks")
	}
	if len(tasks) == 0 {
		return Aggregate(nil, nil), nil
	}

	categories := make(map[string]Category, len(tasks))
	taskIDs := make([]string, 0, len(tasks))
	for _, task := range tasks {
		categories[task.ID] = task.Category
		taskIDs = append(taskIDs, task.ID)
	}

	scores, err := c.scoring.StudentScores(ctx, studentID, taskIDs...)
	if err != nil {
		return Aggregation{}, errors.Wrap(err, "querying scores")
	}
	if len(scores) == 0 {
		return Aggregate(nil, nil), nil
	}

	grouped := make(map[Category][]decimal.Decimal)
	for _, score := range scores {
		cat, ok := categories[score.TaskID]
		if !ok {
			continue
		}
		grouped[cat] = append(grouped[cat], score.Value)
	}

	weights, err := c.scoring.CategoryWeights(ctx, subjectID, classID, semesterID)
	if err != nil {
		return Aggregation{}, errors.Wrap(err, "querying category weights")
	}
	return Aggregate(CategoryMeans(grouped), weights), nil
}
