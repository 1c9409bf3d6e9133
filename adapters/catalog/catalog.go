package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/domain/repositories"
)

//go:embed lessons.yaml
var seedLessons []byte

var _ repositories.LessonCatalog = (*Catalog)(nil)

type document struct {
	Lessons []entities.Lesson `yaml:"lessons"`
}

// Catalog is an immutable, validated set of lessons ordered by id
type Catalog struct {
	lessons []entities.Lesson
	byID    map[int]int
}

// NewEmbedded loads the lessons compiled into the binary
func NewEmbedded() (*Catalog, error) {
	return Parse(seedLessons)
}

// NewFromFile loads lessons from a YAML file on disk
func NewFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lesson file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML lesson document
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lessons: %w", err)
	}
	if len(doc.Lessons) == 0 {
		return nil, entities.Validation("lesson catalog is empty")
	}

	sort.SliceStable(doc.Lessons, func(i, j int) bool { return doc.Lessons[i].ID < doc.Lessons[j].ID })

	c := &Catalog{
		lessons: doc.Lessons,
		byID:    make(map[int]int, len(doc.Lessons)),
	}
	for i := range c.lessons {
		l := &c.lessons[i]
		if _, dup := c.byID[l.ID]; dup {
			return nil, entities.Validation("duplicate lesson id %d", l.ID)
		}
		if err := l.Validate(); err != nil {
			return nil, err
		}
		c.byID[l.ID] = i
	}
	return c, nil
}

// Lessons implements repositories.LessonCatalog
func (c *Catalog) Lessons() []entities.Lesson {
	out := make([]entities.Lesson, len(c.lessons))
	for i, l := range c.lessons {
		out[i] = copyLesson(l)
	}
	return out
}

// Lesson implements repositories.LessonCatalog
func (c *Catalog) Lesson(id int) (*entities.Lesson, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, entities.NotFound("lesson", id)
	}
	l := copyLesson(c.lessons[i])
	return &l, nil
}

func copyLesson(l entities.Lesson) entities.Lesson {
	l.Exercises = append([]entities.Exercise(nil), l.Exercises...)
	return l
}
