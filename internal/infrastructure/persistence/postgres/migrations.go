package postgres

// The analytics service only reads these tables; the LMS owns them in
// production. The migrations recreate the same shape for local development
// and integration environments.

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create users, courses and registrations
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    user_id BIGSERIAL PRIMARY KEY,
    email VARCHAR(254) NOT NULL UNIQUE,
    student_id VARCHAR(50) UNIQUE,
    first_name VARCHAR(150) NOT NULL DEFAULT '',
    last_name VARCHAR(150) NOT NULL DEFAULT '',
    user_type VARCHAR(10) NOT NULL DEFAULT 'student',
    gender SMALLINT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT chk_user_type CHECK (user_type IN ('student', 'teacher', 'admin')),
    CONSTRAINT chk_gender CHECK (gender IS NULL OR gender IN (0, 1))
);

CREATE TABLE IF NOT EXISTS courses (
    course_id BIGSERIAL PRIMARY KEY,
    course_code VARCHAR(20) NOT NULL UNIQUE,
    course_title VARCHAR(200) NOT NULL,
    year INTEGER NOT NULL,
    term VARCHAR(20) NOT NULL,
    description TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS course_registrations (
    registration_id BIGSERIAL PRIMARY KEY,
    student_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    course_id BIGINT NOT NULL REFERENCES courses(course_id) ON DELETE CASCADE,
    enrolled_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    status VARCHAR(20) NOT NULL DEFAULT 'active',

    CONSTRAINT uq_registration UNIQUE (student_id, course_id),
    CONSTRAINT chk_registration_status CHECK (status IN ('active', 'dropped', 'completed'))
);
`

const migration001Down = `
DROP TABLE IF EXISTS course_registrations;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ASSESSMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create attendance, assignments, quizzes and labs
-- Version: 002

CREATE TABLE IF NOT EXISTS attendance (
    attendance_id BIGSERIAL PRIMARY KEY,
    student_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    course_id BIGINT NOT NULL REFERENCES courses(course_id) ON DELETE CASCADE,
    date DATE NOT NULL,
    week_number INTEGER NOT NULL,
    status VARCHAR(10) NOT NULL,
    section VARCHAR(20) NOT NULL DEFAULT 'first-section',

    CONSTRAINT uq_attendance UNIQUE (student_id, course_id, date, section),
    CONSTRAINT chk_attendance_status CHECK (status IN ('present', 'absent'))
);

CREATE TABLE IF NOT EXISTS assignments (
    assignment_id BIGSERIAL PRIMARY KEY,
    course_id BIGINT NOT NULL REFERENCES courses(course_id) ON DELETE CASCADE,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    due_date TIMESTAMP WITH TIME ZONE NOT NULL,
    max_score DOUBLE PRECISION NOT NULL,
    week_number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assignment_submissions (
    submission_id BIGSERIAL PRIMARY KEY,
    assignment_id BIGINT NOT NULL REFERENCES assignments(assignment_id) ON DELETE CASCADE,
    student_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    submission_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    score DOUBLE PRECISION,
    status VARCHAR(20) NOT NULL DEFAULT 'submitted'
);

CREATE TABLE IF NOT EXISTS quizzes (
    quiz_id BIGSERIAL PRIMARY KEY,
    course_id BIGINT NOT NULL REFERENCES courses(course_id) ON DELETE CASCADE,
    title VARCHAR(200) NOT NULL,
    date DATE NOT NULL,
    max_score DOUBLE PRECISION NOT NULL,
    week_number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_scores (
    quiz_score_id BIGSERIAL PRIMARY KEY,
    quiz_id BIGINT NOT NULL REFERENCES quizzes(quiz_id) ON DELETE CASCADE,
    student_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    score DOUBLE PRECISION NOT NULL,
    submitted_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lab_activities (
    lab_id BIGSERIAL PRIMARY KEY,
    course_id BIGINT NOT NULL REFERENCES courses(course_id) ON DELETE CASCADE,
    teacher_id BIGINT REFERENCES users(user_id) ON DELETE SET NULL,
    title VARCHAR(200) NOT NULL,
    date DATE NOT NULL,
    max_score DOUBLE PRECISION NOT NULL,
    week_number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lab_participation (
    participation_id BIGSERIAL PRIMARY KEY,
    lab_id BIGINT NOT NULL REFERENCES lab_activities(lab_id) ON DELETE CASCADE,
    student_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    date DATE NOT NULL,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    attendance BOOLEAN NOT NULL DEFAULT TRUE,
    remark VARCHAR(200) NOT NULL DEFAULT ''
);
`

const migration002Down = `
DROP TABLE IF EXISTS lab_participation;
DROP TABLE IF EXISTS lab_activities;
DROP TABLE IF EXISTS quiz_scores;
DROP TABLE IF EXISTS quizzes;
DROP TABLE IF EXISTS assignment_submissions;
DROP TABLE IF EXISTS assignments;
DROP TABLE IF EXISTS attendance;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ANALYTICS INDEXES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Indexes for the per-registration read path
-- Version: 003

CREATE INDEX IF NOT EXISTS idx_attendance_student_course_week
    ON attendance(student_id, course_id, week_number);

CREATE INDEX IF NOT EXISTS idx_assignments_course_week
    ON assignments(course_id, week_number);
CREATE INDEX IF NOT EXISTS idx_submissions_student_assignment
    ON assignment_submissions(student_id, assignment_id);

CREATE INDEX IF NOT EXISTS idx_quizzes_course_week
    ON quizzes(course_id, week_number);
CREATE INDEX IF NOT EXISTS idx_quiz_scores_student_quiz
    ON quiz_scores(student_id, quiz_id);

CREATE INDEX IF NOT EXISTS idx_labs_course_week
    ON lab_activities(course_id, week_number);
CREATE INDEX IF NOT EXISTS idx_lab_participation_student_lab
    ON lab_participation(student_id, lab_id);

CREATE INDEX IF NOT EXISTS idx_registrations_course_active
    ON course_registrations(course_id) WHERE status = 'active';
`

const migration003Down = `
DROP INDEX IF EXISTS idx_registrations_course_active;
DROP INDEX IF EXISTS idx_lab_participation_student_lab;
DROP INDEX IF EXISTS idx_labs_course_week;
DROP INDEX IF EXISTS idx_quiz_scores_student_quiz;
DROP INDEX IF EXISTS idx_quizzes_course_week;
DROP INDEX IF EXISTS idx_submissions_student_assignment;
DROP INDEX IF EXISTS idx_assignments_course_week;
DROP INDEX IF EXISTS idx_attendance_student_course_week;
`
