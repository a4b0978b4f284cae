package inmemdb

import (
	"context"
	"sort"

	"github.com/darasahq/darasa/core/academic"
	"github.com/darasahq/darasa/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateActivity(_ context.Context, act activity.ClassActivity, questions []activity.Question) (activity.ClassActivity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.activities[act.ID] = &act
	for _, q := range questions {
		q := q
		repo.db.questions[q.ID] = &q
	}
	return act, nil
}

func (repo *activityRepository) GetActivity(_ context.Context, id string) (activity.ClassActivity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if act, ok := repo.db.activities[id]; ok {
		return *act, nil
	}
	return activity.ClassActivity{}, activity.ErrActivityNotFound
}

func (repo *activityRepository) QueryActivitiesByClassIDs(_ context.Context, classIDs []string) ([]activity.ClassActivity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]bool, len(classIDs))
	for _, id := range classIDs {
		wanted[id] = true
	}

	var acts []activity.ClassActivity
	for _, act := range repo.db.activities {
		if wanted[act.ClassID] {
			acts = append(acts, *act)
		}
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].DueDate.Before(acts[j].DueDate) })
	return acts, nil
}

func (repo *activityRepository) queryQuestions(activityID string) []activity.Question {
	var questions []activity.Question
	for _, q := range repo.db.questions {
		if q.ActivityID == activityID {
			questions = append(questions, *q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	return questions
}

func (repo *activityRepository) QueryQuestions(_ context.Context, activityID string, offset, limit int) ([]activity.Question, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	questions := repo.queryQuestions(activityID)
	total := len(questions)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return questions[offset:end], total, nil
}

func (repo *activityRepository) QueryAllQuestions(_ context.Context, activityID string) ([]activity.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.queryQuestions(activityID), nil
}

func (repo *activityRepository) GetAttempt(_ context.Context, studentID, activityID string) (activity.StudentClassActivity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, att := range repo.db.attempts {
		if att.StudentID == studentID && att.ActivityID == activityID {
			return *att, nil
		}
	}
	return activity.StudentClassActivity{}, activity.ErrAttemptNotFound
}

func (repo *activityRepository) CreateAttempt(_ context.Context, att activity.StudentClassActivity) (activity.StudentClassActivity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// enforce one attempt per (student, activity)
	for _, existing := range repo.db.attempts {
		if existing.StudentID == att.StudentID && existing.ActivityID == att.ActivityID {
			return activity.StudentClassActivity{}, activity.ErrAttemptExists
		}
	}
	repo.db.attempts[att.ID] = &att
	return att, nil
}

func (repo *activityRepository) UpdateAttempt(_ context.Context, att activity.StudentClassActivity) (activity.StudentClassActivity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing, ok := repo.db.attempts[att.ID]
	if !ok {
		return activity.StudentClassActivity{}, activity.ErrAttemptNotFound
	}
	// a finalized attempt is immutable
	if isFinalStatus(existing.Status) {
		return activity.StudentClassActivity{}, activity.ErrAlreadySubmitted
	}
	repo.db.attempts[att.ID] = &att
	return att, nil
}

func (repo *activityRepository) CreateAssignment(_ context.Context, asg activity.Assignment, studentIDs []string) (activity.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.assignments[asg.ID] = &asg
	repo.db.assignmentStudents[asg.ID] = make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		repo.db.assignmentStudents[asg.ID][id] = true
	}
	return asg, nil
}

func (repo *activityRepository) GetAssignment(_ context.Context, id string) (activity.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if asg, ok := repo.db.assignments[id]; ok {
		return *asg, nil
	}
	return activity.Assignment{}, activity.ErrAssignmentNotFound
}

func (repo *activityRepository) QueryAssignmentsByStudent(_ context.Context, studentID string) ([]activity.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var asgs []activity.Assignment
	for id, students := range repo.db.assignmentStudents {
		if !students[studentID] {
			continue
		}
		if asg, ok := repo.db.assignments[id]; ok {
			asgs = append(asgs, *asg)
		}
	}
	sort.Slice(asgs, func(i, j int) bool { return asgs[i].DueDate.Before(asgs[j].DueDate) })
	return asgs, nil
}

func (repo *activityRepository) IsAssignedTo(_ context.Context, assignmentID, studentID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.assignmentStudents[assignmentID][studentID], nil
}

func (repo *activityRepository) GetSubmission(_ context.Context, studentID, assignmentID string) (activity.StudentAssignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sub := range repo.db.submissions {
		if sub.StudentID == studentID && sub.AssignmentID == assignmentID {
			return *sub, nil
		}
	}
	return activity.StudentAssignment{}, activity.ErrSubmissionNotFound
}

func (repo *activityRepository) CreateSubmission(_ context.Context, sub activity.StudentAssignment) (activity.StudentAssignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// enforce one submission per (student, assignment)
	for _, existing := range repo.db.submissions {
		if existing.StudentID == sub.StudentID && existing.AssignmentID == sub.AssignmentID {
			return activity.StudentAssignment{}, activity.ErrSubmissionExists
		}
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *activityRepository) UpdateSubmission(_ context.Context, sub activity.StudentAssignment) (activity.StudentAssignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing, ok := repo.db.submissions[sub.ID]
	if !ok {
		return activity.StudentAssignment{}, activity.ErrSubmissionNotFound
	}
	// a final submission only moves from submitted to graded
	if existing.IsFinal() && !(existing.Status == activity.StatusSubmitted && sub.Status == activity.StatusGraded) {
		return activity.StudentAssignment{}, activity.ErrAssignmentFinal
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *activityRepository) IsStudentInClass(_ context.Context, classID, studentID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.classStudents[classID][studentID], nil
}

func (repo *activityRepository) GetClassTeacherID(_ context.Context, classID string) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if class, ok := repo.db.classes[classID]; ok {
		return class.TeacherID, nil
	}
	return "", academic.ErrClassNotFound
}
